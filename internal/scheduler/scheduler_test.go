package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeDM struct {
	mu   sync.Mutex
	sent map[string][]string
	fail map[string]bool
}

func (f *fakeDM) DirectEmbed(_ context.Context, userID string, e *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[userID] {
		return errors.New("dms closed")
	}
	f.sent[userID] = append(f.sent[userID], e.Title)
	return nil
}

type owners map[string]string

func (o owners) GuildOwner(guildID string) (string, bool) {
	id, ok := o[guildID]
	return id, ok
}

type fakeStatus struct {
	mu   sync.Mutex
	last string
}

func (f *fakeStatus) SetListening(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = s
	return nil
}

func (f *fakeStatus) get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type counter int

func (c counter) ConnectedCount() int { return int(c) }

type fixture struct {
	store  *storage.Storage
	dm     *fakeDM
	status *fakeStatus
	sched  *Scheduler
}

func setup(t *testing.T, connected int) *fixture {
	ctx := context.Background()
	st, err := storage.New(ctx, filepath.Join(t.TempDir(), "lyra.db"), storage.Options{Now: func() time.Time { return t0 }})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:  st,
		dm:     &fakeDM{sent: map[string][]string{}, fail: map[string]bool{}},
		status: &fakeStatus{},
	}
	f.sched = New(st, f.dm, owners{"g-old": "owner-1"}, f.status, counter(connected),
		Options{Now: func() time.Time { return t0 }}, zaptest.NewLogger(t).Sugar())
	return f
}

func ptr(t time.Time) *time.Time { return &t }

func TestExpireUsersDowngradesAndNotifies(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	require.NoError(t, f.store.UpdateUserRole(ctx, "expired", access.RolePremium, ptr(t0.Add(-time.Hour))))
	require.NoError(t, f.store.UpdateUserRole(ctx, "boundary", access.RolePremium, ptr(t0)))
	require.NoError(t, f.store.UpdateUserRole(ctx, "active", access.RolePremium, ptr(t0.Add(time.Hour))))
	f.dm.fail["boundary"] = true

	res, err := f.sched.ExpireUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 2, NotifyFail: 1}, res)

	for id, want := range map[string]access.Role{"expired": access.RoleNormal, "boundary": access.RoleNormal, "active": access.RolePremium} {
		u, err := f.store.GetUser(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, u.Role, id)
	}
	u, _ := f.store.GetUser(ctx, "expired")
	assert.Nil(t, u.PremiumExpiresAt)
	assert.Len(t, f.dm.sent["expired"], 1)

	// a second sweep finds nothing
	res, err = f.sched.ExpireUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestExpireGuildsClearsPremiumAndTellsOwner(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	require.NoError(t, f.store.SetGuildPremium(ctx, "g-old", "Old Guild", true, ptr(t0.Add(-time.Minute))))
	require.NoError(t, f.store.SetGuildPremium(ctx, "g-gone", "Left Guild", true, ptr(t0.Add(-time.Minute))))
	require.NoError(t, f.store.SetGuildPremium(ctx, "g-new", "New Guild", true, ptr(t0.Add(time.Hour))))

	res, err := f.sched.ExpireGuilds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	g, err := f.store.GetGuild(ctx, "g-old")
	require.NoError(t, err)
	assert.False(t, g.IsPremium)
	assert.Nil(t, g.PremiumExpiresAt)
	assert.Equal(t, "Old Guild", g.Name)

	g, err = f.store.GetGuild(ctx, "g-new")
	require.NoError(t, err)
	assert.True(t, g.IsPremium)

	assert.Equal(t, []string{"⚠️ Server Premium Access Expired"}, f.dm.sent["owner-1"])
	assert.Len(t, f.dm.sent, 1, "no owner known for g-gone")
}

func TestWarnExpiringOncePerExpiry(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	require.NoError(t, f.store.UpdateUserRole(ctx, "soon", access.RolePremium, ptr(t0.Add(3*time.Hour))))
	require.NoError(t, f.store.UpdateUserRole(ctx, "later", access.RolePremium, ptr(t0.Add(48*time.Hour))))

	res, err := f.sched.WarnExpiring(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Len(t, f.dm.sent["soon"], 1)
	assert.Empty(t, f.dm.sent["later"])

	res, err = f.sched.WarnExpiring(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	// renewed premium gets a fresh warning later on
	require.NoError(t, f.store.UpdateUserRole(ctx, "soon", access.RolePremium, ptr(t0.Add(5*time.Hour))))
	res, err = f.sched.WarnExpiring(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestPresence(t *testing.T) {
	assert.Equal(t, "🎵 Ready to play music | /help", PresenceText(0))
	assert.Equal(t, "🎵 Playing in 3 servers", PresenceText(3))

	f := setup(t, 2)
	require.NoError(t, f.sched.RunNow(context.Background(), JobPresence))
	assert.Equal(t, "🎵 Playing in 2 servers", f.status.get())
}

func TestRunNowUnknownJob(t *testing.T) {
	f := setup(t, 0)
	assert.ErrorContains(t, f.sched.RunNow(context.Background(), "nope"), "unknown job")
}

func TestStartAndStop(t *testing.T) {
	f := setup(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.sched.Start(ctx))
	assert.Equal(t, "🎵 Ready to play music | /help", f.status.get())
	assert.Len(t, f.sched.cron.Entries(), 4)

	f.sched.Stop()
	assert.Empty(t, f.sched.Running())
}
