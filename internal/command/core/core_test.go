package core_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/access/accesstest"
	"github.com/keshon/lyrabot/internal/command"
	"github.com/keshon/lyrabot/internal/command/admin"
	"github.com/keshon/lyrabot/internal/command/commandtest"
	"github.com/keshon/lyrabot/internal/command/core"
	"github.com/keshon/lyrabot/internal/command/voice"
	"github.com/keshon/lyrabot/internal/storage"
	"github.com/keshon/lyrabot/internal/ui"
	"github.com/keshon/lyrabot/pkg/cmd"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestHelpListsSubcommandsByCategory(t *testing.T) {
	reg := cmd.NewRegistry()
	require.NoError(t, command.RegisterCommand(reg, &core.HelpCommand{Registry: reg}))
	require.NoError(t, command.RegisterCommand(reg, &voice.VoiceCommand{}))
	require.NoError(t, command.RegisterCommand(reg, &admin.AdminCommand{}))

	ic, r := commandtest.Interaction{Command: "help", UserID: "u1"}.Context()
	c, ok := reg.Get("help")
	require.True(t, ok)
	require.NoError(t, c.Run(context.Background(), command.Invocation(ic)))

	desc := r.Last().Description
	assert.True(t, r.LastResponse().Ephemeral)
	assert.Contains(t, desc, "`/help` - Get a list of available commands")
	assert.Contains(t, desc, "`/voice 247mode`")
	assert.Contains(t, desc, "`/admin resetlimits`")

	info := strings.Index(desc, "Information")
	voiceAt := strings.Index(desc, "Voice**")
	adminAt := strings.Index(desc, "Administration")
	assert.Less(t, info, voiceAt)
	assert.Less(t, voiceAt, adminAt)
}

func newLimiter(store *accesstest.MemStore) *access.Limiter {
	now := func() time.Time { return t0 }
	r := access.NewResolver(store, "root", now, nil)
	return access.NewLimiter(r, store, access.LimiterOptions{Quota: 5, Window: 12 * time.Hour, Now: now}, nil)
}

func TestLimitsIsADryRun(t *testing.T) {
	store := accesstest.NewMemStore()
	store.PutUser(access.UserEntitlement{ID: "u1", Role: access.RoleNormal, DailyUsage: 2, LastResetAt: t0.Add(-time.Hour)})
	c := &core.LimitsCommand{Limiter: newLimiter(store)}

	charged := 0
	for range 3 {
		ic, r := commandtest.Interaction{Command: "limits", GuildID: "g1", UserID: "u1"}.Context()
		ic.Usage = command.NewUsage(func(context.Context) error { charged++; return nil })
		require.NoError(t, c.Run(context.Background(), ic))
		e := r.Last()
		require.Len(t, e.Fields, 3)
		assert.Equal(t, "3 / 5 remaining", e.Fields[1].Value)
		assert.Contains(t, e.Fields[2].Value, ui.Full(t0.Add(11*time.Hour)))
	}
	assert.Zero(t, charged, "limits never spends a ticket")
	u, _ := store.User("u1")
	assert.Equal(t, 2, u.DailyUsage)

	ic, r := commandtest.Interaction{Command: "limits", GuildID: "g1", UserID: "root"}.Context()
	require.NoError(t, c.Run(context.Background(), ic))
	assert.Equal(t, "♾️ Unlimited", r.Last().Fields[1].Value)
	assert.Equal(t, "👑 Super Admin", r.Last().Fields[0].Value)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	st, err := storage.New(ctx, filepath.Join(t.TempDir(), "lyra.db"), storage.Options{Now: func() time.Time { return t0 }})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	c := &core.StatsCommand{History: st}

	ic, r := commandtest.Interaction{Command: "stats", Subcommand: "toplisteners", GuildID: "g1", UserID: "u1"}.Context()
	require.NoError(t, c.Run(ctx, ic))
	assert.Contains(t, r.Last().Description, "No songs")

	for i, u := range []string{"a", "b", "b", "c", "b", "a"} {
		require.NoError(t, st.AddSongToHistory(ctx, storage.SongRecord{
			GuildID: "g1", UserID: u, Title: "song-" + u, Platform: "youtube", PlayedAt: t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	ic, r = commandtest.Interaction{Command: "stats", Subcommand: "toplisteners", GuildID: "g1", UserID: "u1"}.Context()
	require.NoError(t, c.Run(ctx, ic))
	desc := r.Last().Description
	assert.Contains(t, desc, "🥇 <@b> with **3** song(s)")
	assert.Contains(t, desc, "🥈 <@a> with **2** song(s)")

	ic, r = commandtest.Interaction{Command: "stats", Subcommand: "history", GuildID: "g1", UserID: "u1"}.Context()
	require.NoError(t, c.Run(ctx, ic))
	assert.Regexp(t, `^📺 \*\*song-a\*\*`, r.Last().Description)
}
