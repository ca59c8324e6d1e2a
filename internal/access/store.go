package access

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when the requested record does not exist.
var ErrNotFound = errors.New("entitlement record not found")

// UserEntitlement is the persisted entitlement state of a single user.
type UserEntitlement struct {
	ID               string
	Username         string
	Role             Role
	PremiumExpiresAt *time.Time
	DailyUsage       int
	LastResetAt      time.Time
	TotalSongsPlayed int
}

// GuildEntitlement is the persisted premium state of a guild.
type GuildEntitlement struct {
	ID               string
	Name             string
	IsPremium        bool
	PremiumExpiresAt *time.Time
}

// Store is the durable key-value view of entitlements the resolver and limiter need.
type Store interface {
	GetUser(ctx context.Context, userID string) (*UserEntitlement, error)
	// CreateUser inserts a normal user with zero usage and the given reset time.
	// Existing records are left untouched.
	CreateUser(ctx context.Context, userID string, resetAt time.Time) (*UserEntitlement, error)
	UpdateUserRole(ctx context.Context, userID string, role Role, expiresAt *time.Time) error
	IncrementUsage(ctx context.Context, userID string) error
	ResetUsage(ctx context.Context, userID string, at time.Time) error
	ListUsersByRole(ctx context.Context, role Role) ([]UserEntitlement, error)
	ListExpiredUsers(ctx context.Context, asOf time.Time) ([]UserEntitlement, error)

	GetGuild(ctx context.Context, guildID string) (*GuildEntitlement, error)
	SetGuildPremium(ctx context.Context, guildID, name string, premium bool, expiresAt *time.Time) error
	ListExpiredGuilds(ctx context.Context, asOf time.Time) ([]GuildEntitlement, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Clock is injected so expiry and window arithmetic can be tested.
type Clock func() time.Time
