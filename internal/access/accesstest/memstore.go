// Package accesstest provides an in-memory access.Store for tests.
package accesstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/keshon/lyrabot/internal/access"
)

// MemStore is a goroutine-safe in-memory access.Store. Err, when set, is
// returned from every call. Writes counts calls that mutate user records.
type MemStore struct {
	mu       sync.Mutex
	users    map[string]access.UserEntitlement
	guilds   map[string]access.GuildEntitlement
	settings map[string]string

	Err    error
	Writes int
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:    make(map[string]access.UserEntitlement),
		guilds:   make(map[string]access.GuildEntitlement),
		settings: make(map[string]string),
	}
}

// PutUser seeds or replaces a user record without counting a write.
func (m *MemStore) PutUser(u access.UserEntitlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// PutGuild seeds or replaces a guild record.
func (m *MemStore) PutGuild(g access.GuildEntitlement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds[g.ID] = g
}

// User returns a copy of the stored record.
func (m *MemStore) User(id string) (access.UserEntitlement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok
}

func (m *MemStore) Guild(id string) (access.GuildEntitlement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[id]
	return g, ok
}

func (m *MemStore) GetUser(_ context.Context, userID string) (*access.UserEntitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, access.ErrNotFound
	}
	return &u, nil
}

func (m *MemStore) CreateUser(_ context.Context, userID string, resetAt time.Time) (*access.UserEntitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if u, ok := m.users[userID]; ok {
		return &u, nil
	}
	m.Writes++
	u := access.UserEntitlement{ID: userID, Role: access.RoleNormal, LastResetAt: resetAt}
	m.users[userID] = u
	return &u, nil
}

func (m *MemStore) UpdateUserRole(_ context.Context, userID string, role access.Role, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Writes++
	u, ok := m.users[userID]
	if !ok {
		u = access.UserEntitlement{ID: userID}
	}
	u.Role = role
	u.PremiumExpiresAt = expiresAt
	m.users[userID] = u
	return nil
}

func (m *MemStore) IncrementUsage(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	m.Writes++
	u.DailyUsage++
	m.users[userID] = u
	return nil
}

func (m *MemStore) ResetUsage(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Writes++
	u, ok := m.users[userID]
	if !ok {
		u = access.UserEntitlement{ID: userID, Role: access.RoleNormal}
	}
	u.DailyUsage = 0
	u.LastResetAt = at
	m.users[userID] = u
	return nil
}

func (m *MemStore) ListUsersByRole(_ context.Context, role access.Role) ([]access.UserEntitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []access.UserEntitlement
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) ListExpiredUsers(_ context.Context, asOf time.Time) ([]access.UserEntitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []access.UserEntitlement
	for _, u := range m.users {
		if u.Role == access.RolePremium && u.PremiumExpiresAt != nil && !u.PremiumExpiresAt.After(asOf) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) GetGuild(_ context.Context, guildID string) (*access.GuildEntitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	g, ok := m.guilds[guildID]
	if !ok {
		return nil, access.ErrNotFound
	}
	return &g, nil
}

func (m *MemStore) SetGuildPremium(_ context.Context, guildID, name string, premium bool, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	g := m.guilds[guildID]
	g.ID = guildID
	if name != "" {
		g.Name = name
	}
	g.IsPremium = premium
	g.PremiumExpiresAt = expiresAt
	m.guilds[guildID] = g
	return nil
}

func (m *MemStore) ListExpiredGuilds(_ context.Context, asOf time.Time) ([]access.GuildEntitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []access.GuildEntitlement
	for _, g := range m.guilds {
		if g.IsPremium && g.PremiumExpiresAt != nil && !g.PremiumExpiresAt.After(asOf) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	v, ok := m.settings[key]
	if !ok {
		return "", access.ErrNotFound
	}
	return v, nil
}

func (m *MemStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.settings[key] = value
	return nil
}

var _ access.Store = (*MemStore)(nil)
