package player

import (
	"errors"
	"fmt"
)

var (
	ErrNotInVoice         = errors.New("you must be in a voice channel")
	ErrConnectedElsewhere = errors.New("already connected to a different voice channel")
	ErrNotConnected       = errors.New("not connected to a voice channel")
	ErrNothingPlaying     = errors.New("nothing is playing")
	ErrAlreadyPaused      = errors.New("playback is already paused")
	ErrAlreadyPlaying     = errors.New("playback is not paused")
	ErrInvalidVolume      = errors.New("volume must be between 1 and 100")
	ErrQueueTooShort      = errors.New("need at least 2 tracks in the queue")

	// ErrNoVoicePermission is returned by a VoiceGateway that may not connect or speak.
	ErrNoVoicePermission = errors.New("missing permission to connect or speak in the voice channel")
)

// VoiceError reports a failed voice connect or teardown. Local state cleanup
// has already been applied when it is returned.
type VoiceError struct {
	Op      string
	GuildID string
	Err     error
}

func (e *VoiceError) Error() string {
	return fmt.Sprintf("voice %s in guild %s: %v", e.Op, e.GuildID, e.Err)
}

func (e *VoiceError) Unwrap() error { return e.Err }
