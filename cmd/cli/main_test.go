package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *storage.Storage {
	t.Helper()
	st, err := storage.New(context.Background(), filepath.Join(t.TempDir(), "lyra.db"), storage.Options{Now: func() time.Time { return t0 }})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func exec(t *testing.T, st *storage.Storage, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), st, args, &out, func() time.Time { return t0 })
	return out.String(), err
}

func TestSetRoleAndList(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	out, err := exec(t, st, "setrole", "u1", "premium", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "u1 is now premium (expires 2026-03-08 12:00:00)")

	u, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, access.RolePremium, u.Role)
	require.NotNil(t, u.PremiumExpiresAt)

	out, err = exec(t, st, "roles", "premium")
	require.NoError(t, err)
	assert.Contains(t, out, "u1")

	_, err = exec(t, st, "setrole", "u2", "admin", "3")
	assert.ErrorContains(t, err, "only premium can expire")
	_, err = exec(t, st, "setrole", "u2", "emperor")
	assert.ErrorContains(t, err, "unknown role")
}

func TestPremiumServer(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	_, err := exec(t, st, "premiumserver", "g1", "30")
	require.NoError(t, err)
	g, err := st.GetGuild(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, g.IsPremium)

	out, err := exec(t, st, "premiumserver", "g1", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "premium removed")
	g, err = st.GetGuild(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, g.IsPremium)
}

func TestHistoryAndUsageErrors(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	require.NoError(t, st.AddSongToHistory(ctx, storage.SongRecord{GuildID: "g1", UserID: "u1", Title: "Nightcall", Platform: "youtube", PlayedAt: t0}))

	out, err := exec(t, st, "history", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "Nightcall")

	_, err = exec(t, st)
	assert.ErrorIs(t, err, errUsage)
	_, err = exec(t, st, "dance")
	assert.ErrorIs(t, err, errUsage)
	_, err = exec(t, st, "history", "g1", "-3")
	assert.Error(t, err)
}
