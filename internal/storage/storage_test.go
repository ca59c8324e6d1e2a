package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lyrabot/internal/access"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "db", "test.db"), Options{
		ContactLink: "https://example.com/support",
		Now:         func() time.Time { return t0 },
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(t time.Time) *time.Time { return &t }

func TestUserLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, access.ErrNotFound)

	u, err := s.CreateUser(ctx, "u1", t0)
	require.NoError(t, err)
	assert.Equal(t, access.RoleNormal, u.Role)
	assert.Zero(t, u.DailyUsage)
	assert.True(t, t0.Equal(u.LastResetAt))

	require.NoError(t, s.IncrementUsage(ctx, "u1"))
	require.NoError(t, s.IncrementUsage(ctx, "u1"))

	// second create must not clobber usage
	u, err = s.CreateUser(ctx, "u1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, u.DailyUsage)
	assert.True(t, t0.Equal(u.LastResetAt))

	later := t0.Add(13 * time.Hour)
	require.NoError(t, s.ResetUsage(ctx, "u1", later))
	u, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, u.DailyUsage)
	assert.True(t, later.Equal(u.LastResetAt))
}

func TestIncrementUnknownUserIsNoop(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.IncrementUsage(context.Background(), "ghost"))
	_, err := s.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, access.ErrNotFound)
}

func TestUpdateUserRoleAndExpiryQueries(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateUserRole(ctx, "expired", access.RolePremium, ptr(t0.Add(-time.Hour))))
	require.NoError(t, s.UpdateUserRole(ctx, "boundary", access.RolePremium, ptr(t0)))
	require.NoError(t, s.UpdateUserRole(ctx, "soon", access.RolePremium, ptr(t0.Add(6*time.Hour))))
	require.NoError(t, s.UpdateUserRole(ctx, "forever", access.RolePremium, nil))
	require.NoError(t, s.UpdateUserRole(ctx, "mod", access.RoleModerator, nil))

	expired, err := s.ListExpiredUsers(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"boundary", "expired"}, userIDs(expired))

	expiring, err := s.ListExpiringUsers(ctx, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"soon"}, userIDs(expiring))

	premium, err := s.ListUsersByRole(ctx, access.RolePremium)
	require.NoError(t, err)
	assert.Len(t, premium, 4)

	require.NoError(t, s.UpdateUserRole(ctx, "expired", access.RoleNormal, nil))
	u, err := s.GetUser(ctx, "expired")
	require.NoError(t, err)
	assert.Equal(t, access.RoleNormal, u.Role)
	assert.Nil(t, u.PremiumExpiresAt)
}

func TestGuildPremium(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetGuild(ctx, "g1")
	assert.ErrorIs(t, err, access.ErrNotFound)

	require.NoError(t, s.SetGuildPremium(ctx, "g1", "Guild One", true, ptr(t0.Add(-time.Minute))))
	require.NoError(t, s.SetGuildPremium(ctx, "g2", "Guild Two", true, nil))

	g, err := s.GetGuild(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.IsPremium)
	assert.Equal(t, "Guild One", g.Name)
	require.NotNil(t, g.PremiumExpiresAt)

	expired, err := s.ListExpiredGuilds(ctx, t0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "g1", expired[0].ID)

	require.NoError(t, s.SetGuildPremium(ctx, "g1", "", false, nil))
	g, err = s.GetGuild(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, g.IsPremium)
	assert.Equal(t, "Guild One", g.Name, "empty name keeps the stored one")

	expired, err = s.ListExpiredGuilds(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestSettingsSeededAndOverwritten(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	v, err := s.GetSetting(ctx, SettingContactLink)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/support", v)

	require.NoError(t, s.SetSetting(ctx, SettingContactLink, "https://discord.gg/new"))
	v, err = s.GetSetting(ctx, SettingContactLink)
	require.NoError(t, err)
	assert.Equal(t, "https://discord.gg/new", v)

	_, err = s.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, access.ErrNotFound)
}

func TestSongHistoryAndTopListeners(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i, user := range []string{"a", "b", "a", "a", "b", "c"} {
		require.NoError(t, s.AddSongToHistory(ctx, SongRecord{
			GuildID:  "g1",
			UserID:   user,
			Username: "name-" + user,
			Title:    "track",
			URL:      "https://example.com/t",
			PlayedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	top, err := s.TopListeners(ctx, "g1", 2)
	require.NoError(t, err)
	assert.Equal(t, []ListenerStat{{UserID: "a", Plays: 3}, {UserID: "b", Plays: 2}}, top)

	u, err := s.GetUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, u.TotalSongsPlayed)
	assert.Equal(t, "name-a", u.Username)

	recent, err := s.RecentSongs(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 6)
	assert.Equal(t, "c", recent[0].UserID)
}

func TestCommandHistoryIsTrimmed(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < commandHistoryLimit+5; i++ {
		require.NoError(t, s.AppendCommandHistory(ctx, CommandHistoryRecord{
			GuildID: "g1", ChannelID: "c1", UserID: "u1", Username: "user", Command: "music",
		}))
	}
	require.NoError(t, s.AppendCommandHistory(ctx, CommandHistoryRecord{GuildID: "g2", Command: "voice"}))

	history, err := s.GetCommandsHistory(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, history, commandHistoryLimit)

	other, err := s.GetCommandsHistory(ctx, "g2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func userIDs(users []access.UserEntitlement) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}
