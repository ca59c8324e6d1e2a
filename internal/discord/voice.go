package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lyrabot/internal/music/player"
)

// VoiceGateway joins and leaves voice channels over the main gateway
// connection only. Audio is carried by the audio node, which receives the
// resulting voice session through the state and server updates.
type VoiceGateway struct {
	Session *discordgo.Session
}

func (g VoiceGateway) JoinChannel(guildID, channelID string) error {
	s := g.Session
	if s.State != nil && s.State.User != nil && !canUseVoice(s.State, s.State.User.ID, channelID) {
		return player.ErrNoVoicePermission
	}
	if err := s.ChannelVoiceJoinManual(guildID, channelID, false, true); err != nil {
		return fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	return nil
}

func (g VoiceGateway) LeaveChannel(guildID string) error {
	if err := g.Session.ChannelVoiceJoinManual(guildID, "", false, true); err != nil {
		return fmt.Errorf("leave voice in %s: %w", guildID, err)
	}
	return nil
}
