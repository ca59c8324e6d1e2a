package lavalink

import (
	"context"
	"time"
)

// VoiceStateUpdate records the bot's Discord voice session for a guild.
// An empty channelID means the bot left voice there.
func (c *Client) VoiceStateUpdate(ctx context.Context, guildID, channelID, sessionID string) {
	if channelID == "" {
		c.forgetVoice(guildID)
		return
	}
	c.mu.Lock()
	v := c.voice[guildID]
	v.sessionID = sessionID
	c.voice[guildID] = v
	c.mu.Unlock()
	c.pushVoice(ctx, guildID)
}

// VoiceServerUpdate records the voice server a guild's connection should use.
func (c *Client) VoiceServerUpdate(ctx context.Context, guildID, token, endpoint string) {
	c.mu.Lock()
	v := c.voice[guildID]
	v.token = token
	v.endpoint = endpoint
	c.voice[guildID] = v
	c.mu.Unlock()
	c.pushVoice(ctx, guildID)
}

func (c *Client) forgetVoice(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.voice, guildID)
}

func (c *Client) pushVoice(ctx context.Context, guildID string) {
	c.mu.RLock()
	v, ok := c.voice[guildID]
	c.mu.RUnlock()
	if !ok || !v.complete() || c.SessionID() == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := c.updatePlayer(ctx, guildID, map[string]any{
		"voice": map[string]string{
			"token":     v.token,
			"endpoint":  v.endpoint,
			"sessionId": v.sessionID,
		},
	})
	if err != nil {
		c.log.Warnw("Voice update not accepted by node", "guild", guildID, "error", err)
	}
}

func (c *Client) knownVoice() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	guilds := make([]string, 0, len(c.voice))
	for g, v := range c.voice {
		if v.complete() {
			guilds = append(guilds, g)
		}
	}
	return guilds
}

// resendVoice replays voice servers known before a fresh node session.
func (c *Client) resendVoice(ctx context.Context, guilds []string) {
	for _, g := range guilds {
		c.pushVoice(ctx, g)
	}
}
