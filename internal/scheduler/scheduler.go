// Package scheduler runs the periodic entitlement sweeps and the presence
// refresh on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/pkg/jobmgr"
)

const (
	JobExpireUsers    = "expire-users"
	JobExpireGuilds   = "expire-guilds"
	JobExpiryWarnings = "expiry-warnings"
	JobPresence       = "presence"
)

// Store is what the sweeps read and write.
type Store interface {
	ListExpiredUsers(ctx context.Context, asOf time.Time) ([]access.UserEntitlement, error)
	ListExpiringUsers(ctx context.Context, from, to time.Time) ([]access.UserEntitlement, error)
	UpdateUserRole(ctx context.Context, userID string, role access.Role, expiresAt *time.Time) error
	ListExpiredGuilds(ctx context.Context, asOf time.Time) ([]access.GuildEntitlement, error)
	SetGuildPremium(ctx context.Context, guildID, name string, premium bool, expiresAt *time.Time) error
}

type Messenger interface {
	DirectEmbed(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

// GuildOwners looks up a guild's owner among guilds the bot is in.
type GuildOwners interface {
	GuildOwner(guildID string) (string, bool)
}

// StatusSetter updates the bot's "Listening to" status.
type StatusSetter interface {
	SetListening(status string) error
}

// PlayerCounter reports how many guilds the bot is connected in.
type PlayerCounter interface {
	ConnectedCount() int
}

type Options struct {
	Workers  int
	Location *time.Location
	Now      access.Clock
}

type Scheduler struct {
	store    Store
	dm       Messenger
	owners   GuildOwners
	status   StatusSetter
	players  PlayerCounter
	jobs     *jobmgr.Manager
	cron     *cron.Cron
	workers  int
	now      access.Clock
	log      *zap.SugaredLogger
	schedule []entry

	mu     sync.Mutex
	warned map[string]time.Time
	ctx    context.Context
}

type entry struct {
	spec string
	name string
	run  func(ctx context.Context) error
}

func New(store Store, dm Messenger, owners GuildOwners, status StatusSetter, players PlayerCounter, opts Options, log *zap.SugaredLogger) *Scheduler {
	log = logging.OrNop(log)
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		store:   store,
		dm:      dm,
		owners:  owners,
		status:  status,
		players: players,
		jobs:    jobmgr.NewManager(jobmgr.ZapReporter(log)),
		cron:    cron.New(cron.WithLocation(opts.Location)),
		workers: opts.Workers,
		now:     opts.Now,
		log:     log,
		warned:  make(map[string]time.Time),
		ctx:     context.Background(),
	}
	s.schedule = []entry{
		{"0 * * * *", JobExpireUsers, s.discard(s.ExpireUsers)},
		{"0 * * * *", JobExpireGuilds, s.discard(s.ExpireGuilds)},
		{"0 */6 * * *", JobExpiryWarnings, s.discard(s.WarnExpiring)},
		{"*/30 * * * *", JobPresence, s.UpdatePresence},
	}
	return s
}

func (s *Scheduler) discard(fn func(context.Context) (Result, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
}

// Start registers the cron entries and starts firing them. The presence is
// refreshed right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	for _, e := range s.schedule {
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() { s.trigger(e) }); err != nil {
			return fmt.Errorf("schedule %s: %w", e.name, err)
		}
	}
	s.cron.Start()
	s.log.Infow("Scheduler started", "jobs", len(s.schedule))

	return s.RunNow(ctx, JobPresence)
}

func (s *Scheduler) trigger(e entry) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if err := s.jobs.StartAsync(ctx, e.name, e.run); err != nil {
		if errors.Is(err, jobmgr.ErrRunning) {
			s.log.Warnw("Previous run still in progress, skipping", "job", e.name)
			return
		}
		s.log.Errorw("Job not started", "job", e.name, "error", err)
	}
}

// RunNow runs a named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, e := range s.schedule {
		if e.name == name {
			return s.jobs.StartSync(ctx, e.name, e.run)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

// Stop halts the cron and waits for running sweeps.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.jobs.StopAll()
	s.jobs.Wait()
	s.log.Infow("Scheduler stopped")
}

// Running lists jobs currently executing.
func (s *Scheduler) Running() []string { return s.jobs.List() }
