package storage

import (
	"context"
	"fmt"
	"time"
)

type SongRecord struct {
	GuildID  string
	UserID   string
	Username string
	Title    string
	URL      string
	Platform string
	PlayedAt time.Time
}

type ListenerStat struct {
	UserID string
	Plays  int
}

type CommandHistoryRecord struct {
	GuildID   string
	ChannelID string
	UserID    string
	Username  string
	Command   string
	Param     string
	Datetime  time.Time
}

// AddSongToHistory records a started track and bumps the requester's play count.
func (s *Storage) AddSongToHistory(ctx context.Context, rec SongRecord) error {
	if rec.PlayedAt.IsZero() {
		rec.PlayedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin song history: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO song_history (guild_id, user_id, title, url, platform, played_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.GuildID, rec.UserID, rec.Title, rec.URL, rec.Platform, rec.PlayedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert song history: %w", err)
	}

	if rec.UserID != "" {
		now := s.stamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, total_songs_played, created_at, updated_at)
			 VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				total_songs_played = users.total_songs_played + 1,
				username = CASE WHEN excluded.username = '' THEN users.username ELSE excluded.username END,
				updated_at = excluded.updated_at`,
			rec.UserID, rec.Username, now, now,
		); err != nil {
			return fmt.Errorf("bump play count: %w", err)
		}
	}
	return tx.Commit()
}

// RecentSongs returns the latest tracks played in a guild, newest first.
func (s *Storage) RecentSongs(ctx context.Context, guildID string, limit int) ([]SongRecord, error) {
	if limit <= 0 {
		limit = tracksHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, user_id, title, url, platform, played_at FROM song_history
		 WHERE guild_id = ? ORDER BY played_at DESC, id DESC LIMIT ?`,
		guildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query song history: %w", err)
	}
	defer rows.Close()

	var out []SongRecord
	for rows.Next() {
		var (
			r  SongRecord
			at int64
		)
		if err := rows.Scan(&r.GuildID, &r.UserID, &r.Title, &r.URL, &r.Platform, &at); err != nil {
			return nil, fmt.Errorf("scan song history: %w", err)
		}
		r.PlayedAt = time.Unix(at, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// TopListeners ranks users of a guild by tracks requested.
func (s *Storage) TopListeners(ctx context.Context, guildID string, limit int) ([]ListenerStat, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, COUNT(*) AS plays FROM song_history
		 WHERE guild_id = ? AND user_id <> ''
		 GROUP BY user_id ORDER BY plays DESC, user_id LIMIT ?`,
		guildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top listeners: %w", err)
	}
	defer rows.Close()

	var out []ListenerStat
	for rows.Next() {
		var st ListenerStat
		if err := rows.Scan(&st.UserID, &st.Plays); err != nil {
			return nil, fmt.Errorf("scan top listeners: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// AppendCommandHistory stores an invocation and keeps only the latest entries per guild.
func (s *Storage) AppendCommandHistory(ctx context.Context, rec CommandHistoryRecord) error {
	if rec.Datetime.IsZero() {
		rec.Datetime = s.now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO command_history (guild_id, channel_id, user_id, username, command, param, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.GuildID, rec.ChannelID, rec.UserID, rec.Username, rec.Command, rec.Param, rec.Datetime.Unix(),
	); err != nil {
		return fmt.Errorf("insert command history: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM command_history WHERE guild_id = ? AND id NOT IN (
			SELECT id FROM command_history WHERE guild_id = ? ORDER BY id DESC LIMIT ?
		)`,
		rec.GuildID, rec.GuildID, commandHistoryLimit,
	); err != nil {
		return fmt.Errorf("trim command history: %w", err)
	}
	return nil
}

func (s *Storage) GetCommandsHistory(ctx context.Context, guildID string) ([]CommandHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT guild_id, channel_id, user_id, username, command, param, created_at FROM command_history
		 WHERE guild_id = ? ORDER BY id DESC`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query command history: %w", err)
	}
	defer rows.Close()

	var out []CommandHistoryRecord
	for rows.Next() {
		var (
			r  CommandHistoryRecord
			at int64
		)
		if err := rows.Scan(&r.GuildID, &r.ChannelID, &r.UserID, &r.Username, &r.Command, &r.Param, &at); err != nil {
			return nil, fmt.Errorf("scan command history: %w", err)
		}
		r.Datetime = time.Unix(at, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
