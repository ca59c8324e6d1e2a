package player

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/logging"
)

type Options struct {
	DefaultVolume int
	Mode247Grace  time.Duration
	// EventBuffer sizes the Events channel; events are dropped when it is full.
	EventBuffer int
}

// Manager owns one GuildPlayer per guild. Players are created on first use
// and reset in place, never removed.
type Manager struct {
	mu      sync.Mutex
	players map[string]*GuildPlayer

	node  AudioNode
	voice VoiceGateway
	opts  Options
	log   *zap.SugaredLogger

	events chan Event
}

func NewManager(node AudioNode, voice VoiceGateway, opts Options, log *zap.SugaredLogger) *Manager {
	if opts.DefaultVolume < 1 || opts.DefaultVolume > 100 {
		opts.DefaultVolume = 50
	}
	if opts.Mode247Grace <= 0 {
		opts.Mode247Grace = time.Minute
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	return &Manager{
		players: make(map[string]*GuildPlayer),
		node:    node,
		voice:   voice,
		opts:    opts,
		log:     logging.OrNop(log),
		events:  make(chan Event, opts.EventBuffer),
	}
}

// Get returns the guild's player, creating it if needed.
func (m *Manager) Get(guildID string) *GuildPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.players[guildID]; ok {
		return p
	}
	p := newGuildPlayer(guildID, m)
	m.players[guildID] = p
	return p
}

// Lookup returns the guild's player without creating one.
func (m *Manager) Lookup(guildID string) (*GuildPlayer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	return p, ok
}

func (m *Manager) all() []*GuildPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*GuildPlayer, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	return out
}

// Snapshots returns the state of every connected player, ordered by guild ID.
func (m *Manager) Snapshots() []Snapshot {
	var out []Snapshot
	for _, p := range m.all() {
		if s := p.Snapshot(); s.Connected {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

// ConnectedCount is the size of the active-connections index.
func (m *Manager) ConnectedCount() int {
	n := 0
	for _, p := range m.all() {
		if p.State() != StateIdle {
			n++
		}
	}
	return n
}

// HandleTrackEnd routes an audio node completion signal to the guild's player.
func (m *Manager) HandleTrackEnd(ctx context.Context, guildID, encoded string, reason EndReason) {
	p, ok := m.Lookup(guildID)
	if !ok {
		m.log.Debugw("Track end for unknown guild", "guild", guildID)
		return
	}
	p.TrackEnded(ctx, encoded, reason)
}

// Shutdown leaves every connected guild.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, p := range m.all() {
		if p.State() == StateIdle {
			continue
		}
		if err := p.Leave(ctx); err != nil {
			m.log.Warnw("Leave on shutdown failed", "guild", p.GuildID(), "error", err)
		}
	}
}

// Events delivers player announcements. Slow consumers lose events rather than block playback.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) publish(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Debugw("Player event dropped", "guild", ev.GuildID, "status", ev.Status)
	}
}
