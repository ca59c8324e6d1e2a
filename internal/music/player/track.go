package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Track is an enqueued song. It is a value type: copies share identity.
type Track struct {
	ID        string
	Title     string
	URL       string
	Duration  time.Duration
	Platform  string
	Thumbnail string
	Requester string
	// Encoded is the audio node's opaque handle for the track.
	Encoded  string
	IsStream bool
}

// NewTrack stamps a fresh identity on t.
func NewTrack(t Track) Track {
	t.ID = uuid.NewString()
	return t
}

// DurationString formats the track length as m:ss or h:mm:ss; streams show LIVE.
func (t Track) DurationString() string {
	if t.IsStream {
		return "LIVE"
	}
	d := t.Duration.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopSong
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopSong:
		return "song"
	case LoopQueue:
		return "queue"
	default:
		return "none"
	}
}

func (m LoopMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return LoopNone, nil
	case "song", "track":
		return LoopSong, nil
	case "queue":
		return LoopQueue, nil
	}
	return LoopNone, fmt.Errorf("unknown loop mode %q", s)
}

type State int

const (
	StateIdle State = iota
	StateConnected
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// EndReason is why the audio node stopped a track.
type EndReason string

const (
	EndFinished   EndReason = "finished"
	EndLoadFailed EndReason = "loadFailed"
	EndStopped    EndReason = "stopped"
	EndReplaced   EndReason = "replaced"
	EndCleanup    EndReason = "cleanup"
)

// MayStartNext is true for ends the player did not cause itself.
func (r EndReason) MayStartNext() bool {
	return r == EndFinished || r == EndLoadFailed
}
