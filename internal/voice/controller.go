// Package voice reacts to voice-state changes: involuntary disconnects, moves,
// and leaving channels nobody is listening in.
package voice

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/music/player"
)

// StateChange is a voice-state update reduced to what the controller needs.
// Empty channel IDs mean "not in voice".
type StateChange struct {
	GuildID         string
	UserID          string
	BeforeChannelID string
	AfterChannelID  string
}

// Presence counts listeners in a voice channel.
type Presence interface {
	// HumanCount returns the number of non-bot members in the channel. known
	// is false when the channel cannot be inspected.
	HumanCount(guildID, channelID string) (n int, known bool)
}

// Notifier posts the auto-leave notice. Failures are only logged.
type Notifier interface {
	AutoLeave(ctx context.Context, textChannelID string, idle time.Duration) error
}

type Options struct {
	IdleTimeout time.Duration
}

type Controller struct {
	players  *player.Manager
	presence Presence
	notifier Notifier
	botID    func() string
	idle     time.Duration
	log      *zap.SugaredLogger
}

// NewController wires the controller. botID is called per event because the
// bot's user ID is only known after the gateway is ready.
func NewController(players *player.Manager, presence Presence, notifier Notifier, botID func() string, opts Options, log *zap.SugaredLogger) *Controller {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	return &Controller{
		players:  players,
		presence: presence,
		notifier: notifier,
		botID:    botID,
		idle:     opts.IdleTimeout,
		log:      logging.OrNop(log),
	}
}

// Handle processes one voice-state change.
func (c *Controller) Handle(ctx context.Context, ev StateChange) {
	if ev.GuildID == "" {
		return
	}
	if ev.UserID != "" && ev.UserID == c.botID() {
		c.handleBot(ctx, ev)
	}
	c.checkAlone(ev.GuildID)
}

func (c *Controller) handleBot(ctx context.Context, ev StateChange) {
	p, ok := c.players.Lookup(ev.GuildID)
	if !ok {
		return
	}
	s := p.Snapshot()
	switch {
	case ev.BeforeChannelID != "" && ev.AfterChannelID == "":
		// a leave that lands after a rejoin belongs to the old connection
		if s.Connected && (!s.VoiceConfirmed || ev.BeforeChannelID != s.VoiceChannelID) {
			c.log.Debugw("Ignoring stale voice disconnect", "guild", ev.GuildID, "channel", ev.BeforeChannelID, "current", s.VoiceChannelID)
			return
		}
		c.log.Infow("Bot was disconnected from voice", "guild", ev.GuildID, "channel", ev.BeforeChannelID)
		p.Disconnected(ctx)
	case ev.AfterChannelID != "":
		if s.Connected && s.VoiceConfirmed && s.VoiceChannelID != ev.AfterChannelID {
			c.log.Infow("Bot was moved", "guild", ev.GuildID, "from", s.VoiceChannelID, "to", ev.AfterChannelID)
			p.Moved(ev.AfterChannelID)
			return
		}
		p.ConfirmVoice(ev.AfterChannelID)
	}
}

// occupied treats a channel it cannot inspect as occupied, so a blind spot in
// the state cache never starts a leave.
func (c *Controller) occupied(guildID, channelID string) bool {
	n, known := c.presence.HumanCount(guildID, channelID)
	return !known || n > 0
}

// checkAlone arms the idle leave when the bound channel has no listeners and
// cancels it once someone is back.
func (c *Controller) checkAlone(guildID string) {
	p, ok := c.players.Lookup(guildID)
	if !ok {
		return
	}
	s := p.Snapshot()
	if !s.Connected || s.Mode247 {
		p.Cancel(player.TimerIdle)
		return
	}

	if c.occupied(guildID, s.VoiceChannelID) {
		if s.IdlePending {
			c.log.Debugw("Listener returned, idle leave cancelled", "guild", guildID)
			p.Cancel(player.TimerIdle)
		}
		return
	}

	if p.ScheduleOnce(player.TimerIdle, c.idle, func() { c.idleExpired(p) }) {
		c.log.Infow("Alone in voice, scheduling leave", "guild", guildID, "after", c.idle)
	}
}

func (c *Controller) idleExpired(p *player.GuildPlayer) {
	s := p.Snapshot()
	if !s.Connected || s.Mode247 {
		return
	}
	if c.occupied(s.GuildID, s.VoiceChannelID) {
		return
	}

	ctx := context.Background()
	c.log.Infow("Leaving idle voice channel", "guild", s.GuildID, "channel", s.VoiceChannelID)
	if err := p.Leave(ctx); err != nil {
		c.log.Warnw("Idle leave teardown failed", "guild", s.GuildID, "error", err)
	}
	if s.TextChannelID == "" || c.notifier == nil {
		return
	}
	if err := c.notifier.AutoLeave(ctx, s.TextChannelID, c.idle); err != nil {
		c.log.Warnw("Auto-leave notice not delivered", "guild", s.GuildID, "error", err)
	}
}
