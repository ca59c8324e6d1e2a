package player

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimerKind names a delayed transition armed on a player.
type TimerKind string

const (
	TimerIdle  TimerKind = "idle"
	TimerGrace TimerKind = "grace"
)

// GuildPlayer is the playback state of one guild. All transitions are
// serialised by mu; audio node and gateway calls happen under the lock so a
// guild never runs two transitions at once.
type GuildPlayer struct {
	mu sync.Mutex

	guildID       string
	node          AudioNode
	voice         VoiceGateway
	log           *zap.SugaredLogger
	emit          func(Event)
	grace         time.Duration
	defaultVolume int

	connected      bool
	voiceChannelID string
	voiceConfirmed bool
	textChannelID  string
	queue          []Track
	current        *Track
	playing        bool
	paused         bool
	volume         int
	loop           LoopMode
	mode247        bool
	radio          bool

	timers   map[TimerKind]*time.Timer
	timerGen map[TimerKind]uint64
}

// Snapshot is a point-in-time copy of a player's state.
type Snapshot struct {
	GuildID        string   `json:"guild_id"`
	State          State    `json:"state"`
	Connected      bool     `json:"connected"`
	VoiceChannelID string   `json:"voice_channel_id,omitempty"`
	VoiceConfirmed bool     `json:"voice_confirmed"`
	TextChannelID  string   `json:"text_channel_id,omitempty"`
	Current        *Track   `json:"current,omitempty"`
	Queue          []Track  `json:"queue"`
	Volume         int      `json:"volume"`
	Loop           LoopMode `json:"loop"`
	Mode247        bool     `json:"mode_247"`
	Radio          bool     `json:"radio"`
	IdlePending    bool     `json:"idle_pending"`
	GracePending   bool     `json:"grace_pending"`
}

func newGuildPlayer(guildID string, m *Manager) *GuildPlayer {
	return &GuildPlayer{
		guildID:       guildID,
		node:          m.node,
		voice:         m.voice,
		log:           m.log.With("guild", guildID),
		emit:          m.publish,
		grace:         m.opts.Mode247Grace,
		defaultVolume: m.opts.DefaultVolume,
		volume:        m.opts.DefaultVolume,
		timers:        make(map[TimerKind]*time.Timer),
		timerGen:      make(map[TimerKind]uint64),
	}
}

func (p *GuildPlayer) GuildID() string { return p.guildID }

func (p *GuildPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *GuildPlayer) stateLocked() State {
	switch {
	case !p.connected:
		return StateIdle
	case p.paused:
		return StatePaused
	case p.playing:
		return StatePlaying
	default:
		return StateConnected
	}
}

func (p *GuildPlayer) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		GuildID:        p.guildID,
		State:          p.stateLocked(),
		Connected:      p.connected,
		VoiceChannelID: p.voiceChannelID,
		VoiceConfirmed: p.voiceConfirmed,
		TextChannelID:  p.textChannelID,
		Queue:          append([]Track(nil), p.queue...),
		Volume:         p.volume,
		Loop:           p.loop,
		Mode247:        p.mode247,
		Radio:          p.radio,
		IdlePending:    p.timers[TimerIdle] != nil,
		GracePending:   p.timers[TimerGrace] != nil,
	}
	if p.current != nil {
		cur := *p.current
		s.Current = &cur
	}
	return s
}

// Join connects to channelID. Joining the channel the bot is already in is a
// successful no-op and reports joined=false.
func (p *GuildPlayer) Join(ctx context.Context, channelID, textChannelID string) (joined bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joinLocked(channelID, textChannelID)
}

func (p *GuildPlayer) joinLocked(channelID, textChannelID string) (bool, error) {
	if channelID == "" {
		return false, ErrNotInVoice
	}
	if p.connected {
		if p.voiceChannelID != channelID {
			return false, ErrConnectedElsewhere
		}
		if p.textChannelID == "" {
			p.textChannelID = textChannelID
		}
		return false, nil
	}

	if err := p.voice.JoinChannel(p.guildID, channelID); err != nil {
		return false, &VoiceError{Op: "join", GuildID: p.guildID, Err: err}
	}

	p.connected = true
	p.voiceChannelID = channelID
	p.voiceConfirmed = false
	p.textChannelID = textChannelID
	if p.volume == 0 {
		p.volume = p.defaultVolume
	}
	p.cancelLocked(TimerIdle)
	p.cancelLocked(TimerGrace)
	p.log.Infow("Joined voice channel", "channel", channelID)
	return true, nil
}

// PlayResult describes what Play did with the submitted tracks.
type PlayResult struct {
	// Started is the track that began playing, if playback was idle.
	Started *Track
	// Position is the 1-based queue position of the first queued track; 0 if it started.
	Position int
	Queued   int
}

// Play appends tracks to the queue and starts the head when nothing is current.
func (p *GuildPlayer) Play(ctx context.Context, tracks ...Track) (PlayResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return PlayResult{}, ErrNotConnected
	}
	if len(tracks) == 0 {
		return PlayResult{}, nil
	}

	res := PlayResult{Queued: len(tracks)}
	if p.radio {
		// a live station never ends on its own, so a new request replaces it
		p.current = nil
		p.radio = false
	}
	p.queue = append(p.queue, tracks...)

	if p.current == nil {
		if err := p.startNextLocked(ctx, false); err != nil {
			return res, err
		}
		if p.current != nil {
			cur := *p.current
			res.Started = &cur
			res.Queued--
			return res, nil
		}
	}

	res.Position = len(p.queue) - len(tracks) + 1
	p.publish(StatusAdded, &tracks[0], nil)
	return res, nil
}

// PlayRadio replaces whatever is playing with a live station.
func (p *GuildPlayer) PlayRadio(ctx context.Context, station Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	p.queue = []Track{station}
	p.current = nil
	p.loop = LoopNone
	if err := p.startNextLocked(ctx, false); err != nil {
		return err
	}
	p.radio = p.current != nil
	return nil
}

// startNextLocked dequeues until the node accepts a track. Tracks the node
// rejects are dropped. Returns the last node error if the queue drained without
// anything starting. auto marks advances the player made on its own.
func (p *GuildPlayer) startNextLocked(ctx context.Context, auto bool) error {
	var lastErr error
	for len(p.queue) > 0 {
		t := p.queue[0]
		p.queue = p.queue[1:]

		if err := p.node.Play(ctx, p.guildID, t, p.volume); err != nil {
			p.log.Warnw("Audio node rejected track, skipping", "track", t.Title, "error", err)
			p.publish(StatusError, &t, err)
			lastErr = fmt.Errorf("play %q: %w", t.Title, err)
			continue
		}

		p.current = &t
		p.playing = true
		p.paused = false
		p.cancelLocked(TimerGrace)
		ev := p.event(StatusPlaying, &t, nil)
		ev.Auto = auto
		p.emitEvent(ev)
		return nil
	}

	p.current = nil
	p.playing = false
	p.paused = false
	return lastErr
}

func (p *GuildPlayer) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return ErrAlreadyPaused
	}
	if !p.playing || p.current == nil {
		return ErrNothingPlaying
	}
	if err := p.node.Pause(ctx, p.guildID, true); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	p.playing = false
	p.paused = true
	p.publish(StatusPaused, p.current, nil)
	return nil
}

func (p *GuildPlayer) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return ErrAlreadyPlaying
	}
	if !p.paused || p.current == nil {
		return ErrNothingPlaying
	}
	if err := p.node.Pause(ctx, p.guildID, false); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	p.playing = true
	p.paused = false
	p.publish(StatusResumed, p.current, nil)
	return nil
}

// Skip drops the current track and advances. With LoopSong the skipped track
// is put back at the head first, so skip restarts the same track immediately.
func (p *GuildPlayer) Skip(ctx context.Context) (skipped Track, next *Track, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return Track{}, nil, ErrNothingPlaying
	}

	skipped = *p.current
	if p.loop == LoopSong {
		p.queue = append([]Track{skipped}, p.queue...)
	}
	p.current = nil
	p.playing = false
	p.paused = false

	if len(p.queue) == 0 {
		if err := p.node.Stop(ctx, p.guildID); err != nil {
			p.log.Warnw("Stop on audio node failed", "error", err)
		}
		p.publish(StatusFinished, nil, nil)
		return skipped, nil, nil
	}

	if err := p.startNextLocked(ctx, false); err != nil {
		return skipped, nil, err
	}
	if p.current != nil {
		cur := *p.current
		next = &cur
	}
	return skipped, next, nil
}

// TrackEnded applies the audio node's completion signal. Ends the player caused
// itself (stop, replace) and signals for a track that is no longer current are ignored.
func (p *GuildPlayer) TrackEnded(ctx context.Context, encoded string, reason EndReason) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || !reason.MayStartNext() {
		return
	}
	if encoded != "" && p.current.Encoded != "" && encoded != p.current.Encoded {
		return
	}

	finished := *p.current
	p.current = nil
	p.playing = false
	p.paused = false

	switch p.loop {
	case LoopSong:
		if reason == EndFinished {
			p.queue = append([]Track{finished}, p.queue...)
		}
	case LoopQueue:
		if reason == EndFinished {
			p.queue = append(p.queue, finished)
		}
	}

	if len(p.queue) == 0 {
		p.radio = false
		p.publish(StatusFinished, &finished, nil)
		return
	}
	if err := p.startNextLocked(ctx, true); err != nil {
		p.log.Warnw("Advance after track end failed", "error", err)
	}
}

// Stop clears the queue and current track but keeps the connection.
func (p *GuildPlayer) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	hadTrack := p.current != nil
	p.queue = nil
	p.current = nil
	p.playing = false
	p.paused = false
	p.radio = false

	if hadTrack {
		if err := p.node.Stop(ctx, p.guildID); err != nil {
			p.log.Warnw("Stop on audio node failed", "error", err)
		}
	}
	p.publish(StatusStopped, nil, nil)
	return nil
}

// Leave tears down the voice connection and resets the player, including the
// 24/7 pin. It is idempotent. Local state is cleared even when teardown fails.
func (p *GuildPlayer) Leave(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leaveLocked(ctx)
}

func (p *GuildPlayer) leaveLocked(ctx context.Context) error {
	p.cancelLocked(TimerIdle)
	p.cancelLocked(TimerGrace)

	var err error
	if p.connected {
		if nerr := p.node.Destroy(ctx, p.guildID); nerr != nil {
			p.log.Warnw("Destroy on audio node failed", "error", nerr)
		}
		if verr := p.voice.LeaveChannel(p.guildID); verr != nil {
			err = &VoiceError{Op: "leave", GuildID: p.guildID, Err: verr}
		}
		p.log.Infow("Left voice channel", "channel", p.voiceChannelID)
	}

	text := p.textChannelID
	p.connected = false
	p.voiceChannelID = ""
	p.voiceConfirmed = false
	p.textChannelID = ""
	p.queue = nil
	p.current = nil
	p.playing = false
	p.paused = false
	p.mode247 = false
	p.radio = false
	p.loop = LoopNone
	p.volume = p.defaultVolume

	if p.emit != nil {
		p.emit(Event{GuildID: p.guildID, TextChannelID: text, Status: StatusLeft})
	}
	return err
}

// Disconnected handles the bot being removed from voice by someone else.
// A 24/7-pinned player keeps its queue so playback can resume after a rejoin.
func (p *GuildPlayer) Disconnected(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelLocked(TimerIdle)
	p.cancelLocked(TimerGrace)

	if p.connected {
		if err := p.node.Destroy(ctx, p.guildID); err != nil {
			p.log.Warnw("Destroy on audio node failed", "error", err)
		}
	}

	p.connected = false
	p.voiceChannelID = ""
	p.voiceConfirmed = false
	p.current = nil
	p.playing = false
	p.paused = false
	if !p.mode247 {
		p.queue = nil
		p.radio = false
	}
	p.log.Infow("Disconnected from voice", "mode247", p.mode247)
}

// Moved records that the bot was dragged into another channel.
func (p *GuildPlayer) Moved(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected && channelID != "" {
		p.voiceChannelID = channelID
		p.voiceConfirmed = true
	}
}

// ConfirmVoice records that Discord reported the bot in channelID. A fresh
// connection stays unconfirmed until then.
func (p *GuildPlayer) ConfirmVoice(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected && channelID == p.voiceChannelID {
		p.voiceConfirmed = true
	}
}

// Set247 pins or unpins the player. Enabling joins userChannelID when not
// connected. Disabling while nothing plays schedules a leave after the grace
// period; the leave re-checks the state when it fires.
func (p *GuildPlayer) Set247(ctx context.Context, on bool, userChannelID, textChannelID string) (joined bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if on {
		if !p.connected {
			if userChannelID == "" {
				return false, ErrNotInVoice
			}
			if joined, err = p.joinLocked(userChannelID, textChannelID); err != nil {
				return false, err
			}
		}
		p.mode247 = true
		p.cancelLocked(TimerIdle)
		p.cancelLocked(TimerGrace)
		return joined, nil
	}

	p.mode247 = false
	if p.connected && !p.playing {
		p.scheduleLocked(TimerGrace, p.grace, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.mode247 || p.playing || !p.connected {
				return
			}
			p.log.Infow("24/7 grace period elapsed, leaving")
			if err := p.leaveLocked(context.Background()); err != nil {
				p.log.Warnw("Grace leave failed", "error", err)
			}
		})
	}
	return false, nil
}

func (p *GuildPlayer) Mode247() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode247
}

func (p *GuildPlayer) SetVolume(ctx context.Context, v int) error {
	if v < 1 || v > 100 {
		return ErrInvalidVolume
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNothingPlaying
	}
	if err := p.node.SetVolume(ctx, p.guildID, v); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	p.volume = v
	return nil
}

func (p *GuildPlayer) SetLoop(m LoopMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = m
}

func (p *GuildPlayer) Shuffle() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) < 2 {
		return ErrQueueTooShort
	}
	rand.Shuffle(len(p.queue), func(i, j int) {
		p.queue[i], p.queue[j] = p.queue[j], p.queue[i]
	})
	return nil
}

// ClearQueue drops queued tracks and returns how many were removed.
func (p *GuildPlayer) ClearQueue() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue)
	p.queue = nil
	return n
}

// Schedule arms a delayed action of the given kind, replacing any pending one.
// fn runs without the player lock held and must re-validate state itself.
func (p *GuildPlayer) Schedule(kind TimerKind, d time.Duration, fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scheduleLocked(kind, d, fn)
}

// ScheduleOnce arms the action only when none of that kind is pending.
func (p *GuildPlayer) ScheduleOnce(kind TimerKind, d time.Duration, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timers[kind] != nil {
		return false
	}
	p.scheduleLocked(kind, d, fn)
	return true
}

func (p *GuildPlayer) Cancel(kind TimerKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked(kind)
}

func (p *GuildPlayer) Pending(kind TimerKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timers[kind] != nil
}

// scheduleLocked wraps fn so a timer that was cancelled or replaced after it
// started firing does nothing.
func (p *GuildPlayer) scheduleLocked(kind TimerKind, d time.Duration, fn func()) {
	p.cancelLocked(kind)
	gen := p.timerGen[kind]
	p.timers[kind] = time.AfterFunc(d, func() {
		p.mu.Lock()
		if p.timerGen[kind] != gen {
			p.mu.Unlock()
			return
		}
		delete(p.timers, kind)
		p.timerGen[kind]++
		p.mu.Unlock()
		fn()
	})
}

func (p *GuildPlayer) cancelLocked(kind TimerKind) {
	if t := p.timers[kind]; t != nil {
		t.Stop()
		delete(p.timers, kind)
	}
	p.timerGen[kind]++
}

func (p *GuildPlayer) event(status PlayerStatus, t *Track, err error) Event {
	ev := Event{GuildID: p.guildID, TextChannelID: p.textChannelID, Status: status, Err: err}
	if t != nil {
		cp := *t
		ev.Track = &cp
	}
	return ev
}

func (p *GuildPlayer) emitEvent(ev Event) {
	if p.emit != nil {
		p.emit(ev)
	}
}

func (p *GuildPlayer) publish(status PlayerStatus, t *Track, err error) {
	p.emitEvent(p.event(status, t, err))
}
