package access

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/logging"
)

// Resolver answers "what role does this user have" and "is this guild premium".
//
// ResolveRole is a self-healing read: a premium user whose expiry has passed is
// downgraded to normal in the store before the role is returned. ResolveGuildPremium
// has no such write path; expired guilds are only cleaned up by the scheduler.
type Resolver struct {
	store        Store
	superAdminID string
	now          Clock
	log          *zap.SugaredLogger
}

func NewResolver(store Store, superAdminID string, now Clock, log *zap.SugaredLogger) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		store:        store,
		superAdminID: superAdminID,
		now:          now,
		log:          logging.OrNop(log),
	}
}

// IsSuperAdmin reports whether userID is the configured super admin.
func (r *Resolver) IsSuperAdmin(userID string) bool {
	return r.superAdminID != "" && userID == r.superAdminID
}

// ResolveRole never fails; store errors degrade to RoleNormal.
func (r *Resolver) ResolveRole(ctx context.Context, userID string) Role {
	if r.IsSuperAdmin(userID) {
		return RoleSuperAdmin
	}

	u, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return RoleNormal
	}
	if err != nil {
		r.log.Warnw("Resolve role failed, assuming normal", "user", userID, "error", err)
		return RoleNormal
	}

	role := ParseRole(string(u.Role))
	if role == RolePremium && u.PremiumExpiresAt != nil && r.now().After(*u.PremiumExpiresAt) {
		if err := r.store.UpdateUserRole(ctx, userID, RoleNormal, nil); err != nil {
			r.log.Warnw("Persist premium downgrade failed", "user", userID, "error", err)
		} else {
			downgradesTotal.Inc()
			r.log.Infow("Premium expired, downgraded to normal", "user", userID, "expired_at", *u.PremiumExpiresAt)
		}
		return RoleNormal
	}
	return role
}

// ResolveGuildPremium reports whether the guild currently grants premium to its members.
func (r *Resolver) ResolveGuildPremium(ctx context.Context, guildID string) bool {
	if guildID == "" {
		return false
	}
	g, err := r.store.GetGuild(ctx, guildID)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		r.log.Warnw("Resolve guild premium failed, assuming not premium", "guild", guildID, "error", err)
		return false
	}
	if !g.IsPremium {
		return false
	}
	return g.PremiumExpiresAt == nil || g.PremiumExpiresAt.After(r.now())
}
