// Package storage persists entitlements, settings and listening history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	commandHistoryLimit int = 20
	tracksHistoryLimit  int = 12
)

// Setting keys.
const (
	SettingContactLink = "contact_link"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                 TEXT PRIMARY KEY,
	username           TEXT NOT NULL DEFAULT '',
	role               TEXT NOT NULL DEFAULT 'normal',
	premium_expires    INTEGER,
	daily_usage        INTEGER NOT NULL DEFAULT 0,
	last_reset         INTEGER NOT NULL DEFAULT 0,
	total_songs_played INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

CREATE TABLE IF NOT EXISTS servers (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	is_premium      INTEGER NOT NULL DEFAULT 0,
	premium_expires INTEGER,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS song_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id  TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	title     TEXT NOT NULL,
	url       TEXT NOT NULL,
	platform  TEXT NOT NULL DEFAULT '',
	played_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_song_history_guild ON song_history(guild_id, played_at);

CREATE TABLE IF NOT EXISTS command_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id   TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	username   TEXT NOT NULL,
	command    TEXT NOT NULL,
	param      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_command_history_guild ON command_history(guild_id, created_at);
`

type Options struct {
	ContactLink string
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the SQLite database at path and applies the schema.
func New(ctx context.Context, path string, opts Options) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Storage{db: db, now: opts.Now}
	if s.now == nil {
		s.now = time.Now
	}

	if opts.ContactLink != "" {
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
			SettingContactLink, opts.ContactLink,
		); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed settings: %w", err)
		}
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) stamp() int64 {
	return s.now().Unix()
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
