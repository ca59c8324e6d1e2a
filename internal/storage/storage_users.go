package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keshon/lyrabot/internal/access"
)

const userColumns = `id, username, role, premium_expires, daily_usage, last_reset, total_songs_played`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (access.UserEntitlement, error) {
	var (
		u       access.UserEntitlement
		role    string
		expires sql.NullInt64
		reset   int64
	)
	if err := row.Scan(&u.ID, &u.Username, &role, &expires, &u.DailyUsage, &reset, &u.TotalSongsPlayed); err != nil {
		return u, err
	}
	u.Role = access.Role(role)
	u.PremiumExpiresAt = fromNullUnix(expires)
	u.LastResetAt = time.Unix(reset, 0).UTC()
	return u, nil
}

func (s *Storage) GetUser(ctx context.Context, userID string) (*access.UserEntitlement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &u, nil
}

func (s *Storage) CreateUser(ctx context.Context, userID string, resetAt time.Time) (*access.UserEntitlement, error) {
	now := s.stamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, role, daily_usage, last_reset, created_at, updated_at)
		 VALUES (?, 'normal', 0, ?, ?, ?)`,
		userID, resetAt.Unix(), now, now,
	); err != nil {
		return nil, fmt.Errorf("create user %s: %w", userID, err)
	}
	return s.GetUser(ctx, userID)
}

// UpdateUserRole creates the user when missing.
func (s *Storage) UpdateUserRole(ctx context.Context, userID string, role access.Role, expiresAt *time.Time) error {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, role, premium_expires, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			premium_expires = excluded.premium_expires,
			updated_at = excluded.updated_at`,
		userID, string(role), toNullUnix(expiresAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("update role for %s: %w", userID, err)
	}
	return nil
}

// IncrementUsage is a no-op for unknown users.
func (s *Storage) IncrementUsage(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET daily_usage = daily_usage + 1, updated_at = ? WHERE id = ?`,
		s.stamp(), userID,
	); err != nil {
		return fmt.Errorf("increment usage for %s: %w", userID, err)
	}
	return nil
}

func (s *Storage) ResetUsage(ctx context.Context, userID string, at time.Time) error {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, role, daily_usage, last_reset, created_at, updated_at)
		 VALUES (?, 'normal', 0, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			daily_usage = 0,
			last_reset = excluded.last_reset,
			updated_at = excluded.updated_at`,
		userID, at.Unix(), now, now,
	)
	if err != nil {
		return fmt.Errorf("reset usage for %s: %w", userID, err)
	}
	return nil
}

func (s *Storage) ListUsersByRole(ctx context.Context, role access.Role) ([]access.UserEntitlement, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY id`, string(role))
}

// ListExpiredUsers returns premium users whose expiry is at or before asOf.
func (s *Storage) ListExpiredUsers(ctx context.Context, asOf time.Time) ([]access.UserEntitlement, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE role = 'premium' AND premium_expires IS NOT NULL AND premium_expires <= ?
		 ORDER BY id`,
		asOf.Unix(),
	)
}

// ListExpiringUsers returns premium users whose expiry falls within (from, to].
func (s *Storage) ListExpiringUsers(ctx context.Context, from, to time.Time) ([]access.UserEntitlement, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE role = 'premium' AND premium_expires > ? AND premium_expires <= ?
		 ORDER BY premium_expires`,
		from.Unix(), to.Unix(),
	)
}

func (s *Storage) queryUsers(ctx context.Context, query string, args ...any) ([]access.UserEntitlement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []access.UserEntitlement
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
