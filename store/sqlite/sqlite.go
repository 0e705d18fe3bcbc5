// Package sqlite implements strand.ArchiveStore using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calderhq/strand"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements strand.ArchiveStore backed by a local SQLite file.
// Session messages are stored as a JSON document alongside indexed
// metadata columns.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ strand.ArchiveStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			summary TEXT,
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			messages TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`)

	s.logger.Debug("sqlite: init done", "elapsed", time.Since(start))
	return nil
}

// ArchiveSession upserts one session record.
func (s *Store) ArchiveSession(ctx context.Context, rec *strand.SessionRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("sqlite: session record missing id")
	}
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("sqlite: encode messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, summary, started_at, updated_at, messages)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			updated_at = excluded.updated_at,
			messages = excluded.messages`,
		rec.SessionID, rec.Summary, rec.StartTime.UnixMilli(), rec.LastUpdated.UnixMilli(), string(messages))
	if err != nil {
		return fmt.Errorf("sqlite: archive session: %w", err)
	}
	s.logger.Debug("sqlite: session archived", "session", rec.SessionID, "messages", len(rec.Messages))
	return nil
}

// GetSession loads one archived session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*strand.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, summary, started_at, updated_at, messages
		FROM sessions WHERE id = ?`, sessionID)

	var rec strand.SessionRecord
	var started, updated int64
	var messages string
	if err := row.Scan(&rec.SessionID, &rec.Summary, &started, &updated, &messages); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlite: session %s not found", sessionID)
		}
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}
	rec.StartTime = time.UnixMilli(started).UTC()
	rec.LastUpdated = time.UnixMilli(updated).UTC()
	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return nil, fmt.Errorf("sqlite: decode messages: %w", err)
	}
	return &rec, nil
}

// ListSessions returns archived sessions newest first, up to limit.
// A non-positive limit returns everything.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]strand.SessionInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, summary, started_at, updated_at, json_array_length(messages)
		FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var infos []strand.SessionInfo
	for rows.Next() {
		var info strand.SessionInfo
		var started, updated int64
		if err := rows.Scan(&info.SessionID, &info.Summary, &started, &updated, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		info.StartTime = time.UnixMilli(started).UTC()
		info.LastUpdated = time.UnixMilli(updated).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteSession removes one archived session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("sqlite: delete session: %w", err)
	}
	return nil
}

// GetConfig returns the value stored under key, or empty string when unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get config: %w", err)
	}
	return value, nil
}

// SetConfig upserts a config value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set config: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
