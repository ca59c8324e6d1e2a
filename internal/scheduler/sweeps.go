package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/notify"
	"github.com/keshon/lyrabot/pkg/util"
)

var (
	sweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lyrabot_sweep_items_total",
		Help: "Records handled by scheduler sweeps.",
	}, []string{"job", "outcome"})

	sweepLastRun = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lyrabot_sweep_last_run_timestamp_seconds",
		Help: "Unix time of the last completed sweep.",
	}, []string{"job"})
)

// Result summarises a sweep. Notification failures are counted separately
// because they never fail an item.
type Result struct {
	Processed  int
	Failed     int
	NotifyFail int
}

type tally struct {
	processed, failed, notifyFail atomic.Int64
}

func (t *tally) result() Result {
	return Result{Processed: int(t.processed.Load()), Failed: int(t.failed.Load()), NotifyFail: int(t.notifyFail.Load())}
}

func (s *Scheduler) finish(job string, t *tally, err error) (Result, error) {
	r := t.result()
	sweepItems.WithLabelValues(job, "ok").Add(float64(r.Processed))
	sweepItems.WithLabelValues(job, "failed").Add(float64(r.Failed))
	sweepItems.WithLabelValues(job, "notify_failed").Add(float64(r.NotifyFail))
	sweepLastRun.WithLabelValues(job).Set(float64(s.now().Unix()))
	if r.Processed+r.Failed > 0 {
		s.log.Infow("Sweep finished", "job", job, "processed", r.Processed, "failed", r.Failed, "notifyFailed", r.NotifyFail)
	}
	return r, err
}

// ExpireUsers downgrades every premium user whose expiry has passed and
// tells them by DM.
func (s *Scheduler) ExpireUsers(ctx context.Context) (Result, error) {
	var t tally
	users, err := s.store.ListExpiredUsers(ctx, s.now())
	if err != nil {
		return s.finish(JobExpireUsers, &t, fmt.Errorf("list expired users: %w", err))
	}

	_ = util.ForEach(ctx, users, s.workers, func(ctx context.Context, u access.UserEntitlement) error {
		if err := s.store.UpdateUserRole(ctx, u.ID, access.RoleNormal, nil); err != nil {
			t.failed.Add(1)
			s.log.Errorw("Premium downgrade failed", "user", u.ID, "error", err)
			return err
		}
		t.processed.Add(1)
		s.log.Infow("Premium expired", "user", u.ID, "username", u.Username)
		s.notify(ctx, &t, u.ID, notify.PremiumExpiredEmbed())
		return nil
	})
	return s.finish(JobExpireUsers, &t, nil)
}

// ExpireGuilds clears premium on every guild whose expiry has passed and
// tells the owner when the bot can see the guild.
func (s *Scheduler) ExpireGuilds(ctx context.Context) (Result, error) {
	var t tally
	guilds, err := s.store.ListExpiredGuilds(ctx, s.now())
	if err != nil {
		return s.finish(JobExpireGuilds, &t, fmt.Errorf("list expired guilds: %w", err))
	}

	_ = util.ForEach(ctx, guilds, s.workers, func(ctx context.Context, g access.GuildEntitlement) error {
		if err := s.store.SetGuildPremium(ctx, g.ID, g.Name, false, nil); err != nil {
			t.failed.Add(1)
			s.log.Errorw("Guild premium removal failed", "guild", g.ID, "error", err)
			return err
		}
		t.processed.Add(1)
		s.log.Infow("Guild premium expired", "guild", g.ID, "name", g.Name)

		if s.owners == nil {
			return nil
		}
		owner, ok := s.owners.GuildOwner(g.ID)
		if !ok {
			return nil
		}
		name := g.Name
		if name == "" {
			name = g.ID
		}
		s.notify(ctx, &t, owner, notify.ServerPremiumExpiredEmbed(name))
		return nil
	})
	return s.finish(JobExpireGuilds, &t, nil)
}

// WarnExpiring DMs premium users whose access ends within 24 hours. Each
// expiry is announced once per process.
func (s *Scheduler) WarnExpiring(ctx context.Context) (Result, error) {
	var t tally
	now := s.now()
	users, err := s.store.ListExpiringUsers(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return s.finish(JobExpiryWarnings, &t, fmt.Errorf("list expiring users: %w", err))
	}

	_ = util.ForEach(ctx, users, s.workers, func(ctx context.Context, u access.UserEntitlement) error {
		if u.PremiumExpiresAt == nil || !s.markWarned(u.ID, *u.PremiumExpiresAt) {
			return nil
		}
		t.processed.Add(1)
		s.notify(ctx, &t, u.ID, notify.PremiumExpiringEmbed(*u.PremiumExpiresAt))
		return nil
	})
	return s.finish(JobExpiryWarnings, &t, nil)
}

func (s *Scheduler) markWarned(userID string, expiresAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.warned[userID]; ok && prev.Equal(expiresAt) {
		return false
	}
	s.warned[userID] = expiresAt
	return true
}

func (s *Scheduler) notify(ctx context.Context, t *tally, userID string, embed *discordgo.MessageEmbed) {
	if s.dm == nil {
		return
	}
	if err := s.dm.DirectEmbed(ctx, userID, embed); err != nil {
		t.notifyFail.Add(1)
		s.log.Warnw("Could not deliver notice", "user", userID, "title", embed.Title, "error", err)
	}
}

// PresenceText is the listening status for n connected guilds.
func PresenceText(n int) string {
	if n == 0 {
		return "🎵 Ready to play music | /help"
	}
	return fmt.Sprintf("🎵 Playing in %d servers", n)
}

func (s *Scheduler) UpdatePresence(ctx context.Context) error {
	if s.status == nil || s.players == nil {
		return nil
	}
	return s.status.SetListening(PresenceText(s.players.ConnectedCount()))
}
