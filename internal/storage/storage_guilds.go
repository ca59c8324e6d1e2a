package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keshon/lyrabot/internal/access"
)

func (s *Storage) GetGuild(ctx context.Context, guildID string) (*access.GuildEntitlement, error) {
	var (
		g       access.GuildEntitlement
		premium int
		expires sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_premium, premium_expires FROM servers WHERE id = ?`, guildID,
	).Scan(&g.ID, &g.Name, &premium, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get guild %s: %w", guildID, err)
	}
	g.IsPremium = premium != 0
	g.PremiumExpiresAt = fromNullUnix(expires)
	return &g, nil
}

// SetGuildPremium upserts the guild's premium flag. An empty name keeps the stored one.
func (s *Storage) SetGuildPremium(ctx context.Context, guildID, name string, premium bool, expiresAt *time.Time) error {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (id, name, is_premium, premium_expires, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN servers.name ELSE excluded.name END,
			is_premium = excluded.is_premium,
			premium_expires = excluded.premium_expires,
			updated_at = excluded.updated_at`,
		guildID, name, boolToInt(premium), toNullUnix(expiresAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("set guild premium for %s: %w", guildID, err)
	}
	return nil
}

// ListExpiredGuilds returns premium guilds whose expiry is at or before asOf.
func (s *Storage) ListExpiredGuilds(ctx context.Context, asOf time.Time) ([]access.GuildEntitlement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_premium, premium_expires FROM servers
		 WHERE is_premium = 1 AND premium_expires IS NOT NULL AND premium_expires <= ?
		 ORDER BY id`,
		asOf.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired guilds: %w", err)
	}
	defer rows.Close()

	var out []access.GuildEntitlement
	for rows.Next() {
		var (
			g       access.GuildEntitlement
			premium int
			expires sql.NullInt64
		)
		if err := rows.Scan(&g.ID, &g.Name, &premium, &expires); err != nil {
			return nil, fmt.Errorf("scan guild: %w", err)
		}
		g.IsPremium = premium != 0
		g.PremiumExpiresAt = fromNullUnix(expires)
		out = append(out, g)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
