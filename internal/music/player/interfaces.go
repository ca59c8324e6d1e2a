package player

import "context"

// AudioNode executes playback on an external audio server.
type AudioNode interface {
	Play(ctx context.Context, guildID string, t Track, volume int) error
	Stop(ctx context.Context, guildID string) error
	Pause(ctx context.Context, guildID string, paused bool) error
	SetVolume(ctx context.Context, guildID string, volume int) error
	Destroy(ctx context.Context, guildID string) error
}

// VoiceGateway opens and closes the bot's voice connection for a guild.
type VoiceGateway interface {
	JoinChannel(guildID, channelID string) error
	LeaveChannel(guildID string) error
}

type PlayerStatus string

const (
	StatusPlaying  PlayerStatus = "Playing"
	StatusAdded    PlayerStatus = "Track(s) Added"
	StatusStopped  PlayerStatus = "Playback Stopped"
	StatusPaused   PlayerStatus = "Playback Paused"
	StatusResumed  PlayerStatus = "Playback Resumed"
	StatusFinished PlayerStatus = "Queue Finished"
	StatusLeft     PlayerStatus = "Left Voice"
	StatusError    PlayerStatus = "Error"
)

func (status PlayerStatus) StringEmoji() string {
	m := map[PlayerStatus]string{
		StatusPlaying:  "▶️",
		StatusAdded:    "🎶",
		StatusStopped:  "⏹",
		StatusPaused:   "⏸",
		StatusResumed:  "▶️",
		StatusFinished: "🏁",
		StatusLeft:     "👋",
		StatusError:    "❌",
	}
	return m[status]
}

// Event is published by players on state changes worth announcing.
type Event struct {
	GuildID       string
	TextChannelID string
	Status        PlayerStatus
	Track         *Track
	Err           error

	// Auto is set when playback advanced on its own after a track ended.
	Auto bool
}
