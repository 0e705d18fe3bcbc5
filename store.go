package strand

import "context"

// ArchiveStore abstracts durable session archiving beyond the per-project
// JSON files: long-term storage, cross-project search, retention. The
// store/sqlite and store/postgres packages provide implementations.
type ArchiveStore interface {
	// --- Sessions ---
	ArchiveSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// --- Key-value config ---
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
