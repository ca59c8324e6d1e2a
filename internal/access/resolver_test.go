package access_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/access/accesstest"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func ptr(t time.Time) *time.Time { return &t }

func newResolver(t *testing.T, store access.Store, clock *fakeClock) *access.Resolver {
	return access.NewResolver(store, "super", clock.Now, zaptest.NewLogger(t).Sugar())
}

func TestResolveRoleSuperAdminSkipsStore(t *testing.T) {
	store := accesstest.NewMemStore()
	store.Err = errors.New("store down")
	r := newResolver(t, store, &fakeClock{now: t0})

	assert.Equal(t, access.RoleSuperAdmin, r.ResolveRole(context.Background(), "super"))
}

func TestResolveRoleAbsentIsNormal(t *testing.T) {
	r := newResolver(t, accesstest.NewMemStore(), &fakeClock{now: t0})
	assert.Equal(t, access.RoleNormal, r.ResolveRole(context.Background(), "nobody"))
}

func TestResolveRoleStoreErrorIsNormal(t *testing.T) {
	store := accesstest.NewMemStore()
	store.PutUser(access.UserEntitlement{ID: "u1", Role: access.RoleAdmin})
	store.Err = errors.New("disk full")
	r := newResolver(t, store, &fakeClock{now: t0})

	assert.Equal(t, access.RoleNormal, r.ResolveRole(context.Background(), "u1"))
}

func TestResolveRoleExpiredPremiumIsDowngradedOnce(t *testing.T) {
	store := accesstest.NewMemStore()
	store.PutUser(access.UserEntitlement{ID: "u1", Role: access.RolePremium, PremiumExpiresAt: ptr(t0.Add(-time.Second))})
	r := newResolver(t, store, &fakeClock{now: t0})
	ctx := context.Background()

	assert.Equal(t, access.RoleNormal, r.ResolveRole(ctx, "u1"))
	assert.Equal(t, 1, store.Writes)

	u, ok := store.User("u1")
	require.True(t, ok)
	assert.Equal(t, access.RoleNormal, u.Role)
	assert.Nil(t, u.PremiumExpiresAt)

	assert.Equal(t, access.RoleNormal, r.ResolveRole(ctx, "u1"))
	assert.Equal(t, 1, store.Writes, "second read must not write again")
}

func TestResolveRolePremiumAtExactExpiryStillPremium(t *testing.T) {
	store := accesstest.NewMemStore()
	store.PutUser(access.UserEntitlement{ID: "u1", Role: access.RolePremium, PremiumExpiresAt: ptr(t0)})
	r := newResolver(t, store, &fakeClock{now: t0})

	assert.Equal(t, access.RolePremium, r.ResolveRole(context.Background(), "u1"))
	assert.Zero(t, store.Writes)
}

func TestResolveRolePermanentPremium(t *testing.T) {
	store := accesstest.NewMemStore()
	store.PutUser(access.UserEntitlement{ID: "u1", Role: access.RolePremium})
	r := newResolver(t, store, &fakeClock{now: t0})

	assert.Equal(t, access.RolePremium, r.ResolveRole(context.Background(), "u1"))
}

func TestResolveGuildPremium(t *testing.T) {
	store := accesstest.NewMemStore()
	store.PutGuild(access.GuildEntitlement{ID: "active", IsPremium: true, PremiumExpiresAt: ptr(t0.Add(time.Hour))})
	store.PutGuild(access.GuildEntitlement{ID: "forever", IsPremium: true})
	store.PutGuild(access.GuildEntitlement{ID: "expired", IsPremium: true, PremiumExpiresAt: ptr(t0.Add(-time.Hour))})
	store.PutGuild(access.GuildEntitlement{ID: "exact", IsPremium: true, PremiumExpiresAt: ptr(t0)})
	store.PutGuild(access.GuildEntitlement{ID: "off", IsPremium: false})
	r := newResolver(t, store, &fakeClock{now: t0})
	ctx := context.Background()

	assert.True(t, r.ResolveGuildPremium(ctx, "active"))
	assert.True(t, r.ResolveGuildPremium(ctx, "forever"))
	assert.False(t, r.ResolveGuildPremium(ctx, "expired"))
	assert.False(t, r.ResolveGuildPremium(ctx, "exact"))
	assert.False(t, r.ResolveGuildPremium(ctx, "off"))
	assert.False(t, r.ResolveGuildPremium(ctx, "missing"))
	assert.False(t, r.ResolveGuildPremium(ctx, ""))

	g, _ := store.Guild("expired")
	assert.True(t, g.IsPremium, "guild reads never write")
}
