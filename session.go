package strand

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RecordedCall is one persisted function call and, when the tool ran before
// the session ended, its result. HasResult distinguishes a dangling call
// from one that legitimately produced an empty result.
type RecordedCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Args      json.RawMessage `json:"args,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"isError,omitempty"`
	HasResult bool            `json:"hasResult,omitempty"`
}

// Entry is one persisted conversation message.
type Entry struct {
	// Kind is "user", "model", "tool_result", or "annotation".
	Kind string `json:"kind"`
	// Content holds text (a JSON string) or richer structured content (a
	// JSON array of parts). Unknown shapes round-trip opaquely.
	Content   json.RawMessage `json:"content,omitempty"`
	Calls     []RecordedCall  `json:"calls,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// SessionRecord is the archived form of a conversation: one JSON document
// per session.
type SessionRecord struct {
	SessionID   string    `json:"sessionId"`
	StartTime   time.Time `json:"startTime"`
	LastUpdated time.Time `json:"lastUpdated"`
	Summary     string    `json:"summary,omitempty"`
	Messages    []Entry   `json:"messages"`
}

// SessionInfo describes one stored session without its full message list.
type SessionInfo struct {
	SessionID    string
	Summary      string
	StartTime    time.Time
	LastUpdated  time.Time
	MessageCount int
	Path         string
}

const sessionFilePrefix = "session-"

// ProjectSessionDir returns the per-project session directory under the
// system temp dir. Distinct projects never share a directory.
func ProjectSessionDir(projectPath string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, strings.Trim(projectPath, "/\\"))
	if sanitized == "" {
		sanitized = "default"
	}
	return filepath.Join(os.TempDir(), "strand", "sessions", sanitized)
}

// SessionFileStore persists session records as JSON files, one per session.
type SessionFileStore struct {
	dir    string
	logger *slog.Logger
}

// SessionStoreOption configures a SessionFileStore.
type SessionStoreOption func(*SessionFileStore)

// WithStoreLogger sets the store's logger.
func WithStoreLogger(l *slog.Logger) SessionStoreOption {
	return func(s *SessionFileStore) { s.logger = l }
}

// NewSessionFileStore creates a store rooted at dir. The directory is
// created on first save.
func NewSessionFileStore(dir string, opts ...SessionStoreOption) *SessionFileStore {
	s := &SessionFileStore{dir: dir, logger: nopLogger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the store's root directory.
func (s *SessionFileStore) Dir() string { return s.dir }

func (s *SessionFileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionFilePrefix+sessionID+".json")
}

// Save writes the record atomically (temp file plus rename), overwriting
// any earlier snapshot of the same session.
func (s *SessionFileStore) Save(ctx context.Context, rec *SessionRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("session record missing id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, sessionFilePrefix+"*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(rec.SessionID)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Load reads and normalizes one session record. Standalone tool_result
// entries are folded onto the model entry that issued the matching calls.
func (s *SessionFileStore) Load(ctx context.Context, sessionID string) (*SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	normalizeRecord(&rec)
	return &rec, nil
}

// Delete removes one stored session.
func (s *SessionFileStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Remove(s.path(sessionID))
}

// List returns stored sessions newest first. Files that fail to decode are
// skipped, not fatal, so one corrupt record never hides the rest.
func (s *SessionFileStore) List(ctx context.Context) ([]SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var infos []SessionInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, sessionFilePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Debug("skipping unreadable session file", "path", path, "error", err)
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil || rec.SessionID == "" {
			s.logger.Debug("skipping corrupt session file", "path", path, "error", err)
			continue
		}
		infos = append(infos, SessionInfo{
			SessionID:    rec.SessionID,
			Summary:      rec.Summary,
			StartTime:    rec.StartTime,
			LastUpdated:  rec.LastUpdated,
			MessageCount: len(rec.Messages),
			Path:         path,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastUpdated.After(infos[j].LastUpdated)
	})
	return infos, nil
}

// Latest returns the most recently updated session record, or nil when the
// store is empty.
func (s *SessionFileStore) Latest(ctx context.Context) (*SessionRecord, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return s.Load(ctx, infos[0].SessionID)
}

// normalizeRecord folds standalone tool_result entries into the preceding
// model entry's calls, matching by call id. Results with no matching call
// are dropped.
func normalizeRecord(rec *SessionRecord) {
	var out []Entry
	for _, entry := range rec.Messages {
		if entry.Kind != "tool_result" {
			out = append(out, entry)
			continue
		}
		if len(out) == 0 {
			continue
		}
		prev := &out[len(out)-1]
		if prev.Kind != "model" {
			continue
		}
		for _, res := range entry.Calls {
			for i := range prev.Calls {
				if prev.Calls[i].ID == res.ID {
					prev.Calls[i].Result = res.Result
					prev.Calls[i].IsError = res.IsError
					prev.Calls[i].HasResult = true
				}
			}
		}
	}
	rec.Messages = out
}

// ReconstructHistory rebuilds conversation turns from a stored record.
// Calls that never produced a result stay dangling: the call part is
// preserved with no paired response, matching what the model actually saw.
func ReconstructHistory(rec *SessionRecord) []Turn {
	var turns []Turn
	for _, entry := range rec.Messages {
		switch entry.Kind {
		case "user":
			if parts := normalizeContent(entry.Content); len(parts) > 0 {
				turns = append(turns, Turn{Role: RoleUser, Parts: parts})
			}
		case "model":
			parts := normalizeContent(entry.Content)
			for _, call := range entry.Calls {
				parts = append(parts, CallPart(FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args}))
			}
			if len(parts) > 0 {
				turns = append(turns, Turn{Role: RoleModel, Parts: parts})
			}
			var results []Part
			for _, call := range entry.Calls {
				if call.HasResult {
					results = append(results, ResponsePart(FunctionResponse{
						ID:      call.ID,
						Name:    call.Name,
						Content: call.Result,
						IsError: call.IsError,
					}))
				}
			}
			if len(results) > 0 {
				turns = append(turns, Turn{Role: RoleUser, Parts: results})
			}
		}
		// Annotations carry no conversational content.
	}
	return turns
}

// EncodeHistory converts turns into a storable record. Function responses
// in a user turn are folded back into the model entry that issued the
// matching calls, so EncodeHistory(ReconstructHistory(rec)) is stable.
func EncodeHistory(sessionID string, turns []Turn) *SessionRecord {
	now := time.Now().UTC()
	rec := &SessionRecord{SessionID: sessionID, StartTime: now, LastUpdated: now}

	for _, turn := range turns {
		var texts []string
		var elems []json.RawMessage
		var calls []RecordedCall
		var results []FunctionResponse
		hasOpaque := false
		for _, part := range turn.Parts {
			switch {
			case part.Call != nil:
				calls = append(calls, RecordedCall{ID: part.Call.ID, Name: part.Call.Name, Args: part.Call.Args})
			case part.Response != nil:
				results = append(results, *part.Response)
			case part.Opaque != nil:
				hasOpaque = true
				elems = append(elems, part.Opaque)
			case part.Text != "":
				texts = append(texts, part.Text)
				s, _ := json.Marshal(part.Text)
				elems = append(elems, s)
			}
		}

		if turn.Role == RoleUser && len(results) > 0 && len(calls) == 0 && len(elems) == 0 {
			foldResults(rec, results)
			continue
		}

		entry := Entry{Kind: "user", Timestamp: now}
		if turn.Role == RoleModel {
			entry.Kind = "model"
		}
		switch {
		case hasOpaque:
			// Mixed or non-text content keeps its array shape, in part order.
			content, _ := json.Marshal(elems)
			entry.Content = content
		case len(texts) > 0:
			content, _ := json.Marshal(strings.Join(texts, "\n"))
			entry.Content = content
		}
		entry.Calls = calls
		rec.Messages = append(rec.Messages, entry)
	}

	if rec.Summary == "" {
		rec.Summary = firstUserText(rec)
	}
	return rec
}

func foldResults(rec *SessionRecord, results []FunctionResponse) {
	if len(rec.Messages) == 0 {
		return
	}
	prev := &rec.Messages[len(rec.Messages)-1]
	if prev.Kind != "model" {
		return
	}
	for _, res := range results {
		for i := range prev.Calls {
			if prev.Calls[i].ID == res.ID {
				prev.Calls[i].Result = res.Content
				prev.Calls[i].IsError = res.IsError
				prev.Calls[i].HasResult = true
			}
		}
	}
}

const summaryLimit = 80

func firstUserText(rec *SessionRecord) string {
	for _, entry := range rec.Messages {
		if entry.Kind != "user" || len(entry.Content) == 0 {
			continue
		}
		var text string
		if err := json.Unmarshal(entry.Content, &text); err != nil || text == "" {
			continue
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
		if len(text) > summaryLimit {
			text = text[:summaryLimit]
		}
		return text
	}
	return ""
}

// normalizeContent decodes a stored content field into parts: a JSON string
// becomes one text part, an array becomes one part per element (strings and
// {"text": ...} objects as text, anything else opaque), and any other shape
// rounds-trips as a single opaque part.
func normalizeContent(raw json.RawMessage) []Part {
	if len(raw) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return nil
		}
		return []Part{TextPart(text)}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err == nil {
		var parts []Part
		for _, elem := range elems {
			var s string
			if err := json.Unmarshal(elem, &s); err == nil {
				parts = append(parts, TextPart(s))
				continue
			}
			var obj struct {
				Text *string `json:"text"`
			}
			if err := json.Unmarshal(elem, &obj); err == nil && obj.Text != nil {
				parts = append(parts, TextPart(*obj.Text))
				continue
			}
			parts = append(parts, OpaquePart(elem))
		}
		return parts
	}

	return []Part{OpaquePart(raw)}
}

// Snapshot encodes the agent's current transcript as a storable record,
// keeping the resumed record's start time when there is one.
func (a *Agent) Snapshot() *SessionRecord {
	rec := EncodeHistory(a.sessionID, a.transcript)
	if !a.startTime.IsZero() {
		rec.StartTime = a.startTime
	}
	return rec
}
