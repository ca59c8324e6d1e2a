package discord

import "github.com/bwmarrin/discordgo"

// Directory answers guild, member and voice questions from the gateway cache.
type Directory struct {
	State *discordgo.State
}

func (d Directory) botID() string {
	if d.State.User == nil {
		return ""
	}
	return d.State.User.ID
}

// UserVoiceChannel returns the voice channel userID sits in, or "".
func (d Directory) UserVoiceChannel(guildID, userID string) string {
	vs, err := d.State.VoiceState(guildID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

// HumanCount counts the non-bot members in a voice channel. known is false
// when the guild is not in the state cache.
func (d Directory) HumanCount(guildID, channelID string) (n int, known bool) {
	guild, err := d.State.Guild(guildID)
	if err != nil {
		return 0, false
	}

	type occupant struct {
		userID string
		bot    *bool
	}
	var inChannel []occupant
	d.State.RLock()
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		o := occupant{userID: vs.UserID}
		if vs.Member != nil && vs.Member.User != nil {
			isBot := vs.Member.User.Bot
			o.bot = &isBot
		}
		inChannel = append(inChannel, o)
	}
	d.State.RUnlock()

	self := d.botID()
	for _, o := range inChannel {
		if o.userID == self {
			continue
		}
		if o.bot == nil {
			if m, err := d.State.Member(guildID, o.userID); err == nil && m.User != nil {
				isBot := m.User.Bot
				o.bot = &isBot
			}
		}
		if o.bot != nil && *o.bot {
			continue
		}
		n++
	}
	return n, true
}

// GuildName falls back to the ID when the guild is not cached.
func (d Directory) GuildName(guildID string) string {
	if g, err := d.State.Guild(guildID); err == nil && g.Name != "" {
		return g.Name
	}
	return guildID
}

func (d Directory) GuildOwner(guildID string) (string, bool) {
	g, err := d.State.Guild(guildID)
	if err != nil || g.OwnerID == "" {
		return "", false
	}
	return g.OwnerID, true
}

// Username prefers the member's server nickname.
func (d Directory) Username(guildID, userID string) string {
	m, err := d.State.Member(guildID, userID)
	if err != nil || m.User == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	return m.User.Username
}
