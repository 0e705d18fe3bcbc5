// Package postgres implements strand.ArchiveStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calderhq/strand"
)

// Store implements strand.ArchiveStore backed by PostgreSQL. Session
// messages live in a JSONB column; metadata columns are indexed for
// listing.
type Store struct {
	pool *pgxpool.Pool
}

var _ strand.ArchiveStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			summary TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			messages JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// ArchiveSession upserts one session record.
func (s *Store) ArchiveSession(ctx context.Context, rec *strand.SessionRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("postgres: session record missing id")
	}
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("postgres: encode messages: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, summary, started_at, updated_at, messages)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			summary = EXCLUDED.summary,
			updated_at = EXCLUDED.updated_at,
			messages = EXCLUDED.messages`,
		rec.SessionID, rec.Summary, rec.StartTime, rec.LastUpdated, messages)
	if err != nil {
		return fmt.Errorf("postgres: archive session: %w", err)
	}
	return nil
}

// GetSession loads one archived session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*strand.SessionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, summary, started_at, updated_at, messages
		FROM sessions WHERE id = $1`, sessionID)

	var rec strand.SessionRecord
	var messages []byte
	var started, updated time.Time
	if err := row.Scan(&rec.SessionID, &rec.Summary, &started, &updated, &messages); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: session %s not found", sessionID)
		}
		return nil, fmt.Errorf("postgres: get session: %w", err)
	}
	rec.StartTime = started.UTC()
	rec.LastUpdated = updated.UTC()
	if err := json.Unmarshal(messages, &rec.Messages); err != nil {
		return nil, fmt.Errorf("postgres: decode messages: %w", err)
	}
	return &rec, nil
}

// ListSessions returns archived sessions newest first, up to limit.
// A non-positive limit returns everything.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]strand.SessionInfo, error) {
	query := `SELECT id, summary, started_at, updated_at, jsonb_array_length(messages) FROM sessions ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var infos []strand.SessionInfo
	for rows.Next() {
		var info strand.SessionInfo
		var started, updated time.Time
		if err := rows.Scan(&info.SessionID, &info.Summary, &started, &updated, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		info.StartTime = started.UTC()
		info.LastUpdated = updated.UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteSession removes one archived session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("postgres: delete session: %w", err)
	}
	return nil
}

// GetConfig returns the value stored under key, or empty string when unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: get config: %w", err)
	}
	return value, nil
}

// SetConfig upserts a config value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set config: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }
