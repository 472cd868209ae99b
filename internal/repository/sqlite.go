// Package repository provides the sqlite event journal.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

// SQLiteStore journals stream traffic and log entries. It implements
// domain.Recorder.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.Recorder = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			variant TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stream_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			payload TEXT NOT NULL,
			decoded INTEGER NOT NULL DEFAULT 0,
			received_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_events_session ON stream_events(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS log_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			tag TEXT,
			tool_call TEXT,
			options TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_session ON log_entries(session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// TouchSession creates the session row or bumps its last_seen_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, variant domain.Variant) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, variant, created_at, last_seen_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		sessionID, variant, now, now)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. It returns nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, variant, created_at, last_seen_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&rec.SessionID, &rec.Variant, &rec.CreatedAt, &rec.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSessions returns all journaled sessions, most recently seen first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, variant, created_at, last_seen_at FROM sessions ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		if err := rows.Scan(&rec.SessionID, &rec.Variant, &rec.CreatedAt, &rec.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordEvent appends a raw stream event. Events for unknown sessions
// create the session row with the agent variant.
func (s *SQLiteStore) RecordEvent(ctx context.Context, event *domain.StreamEvent) error {
	if event.EventID == "" {
		event.EventID = "evt_" + uuid.New().String()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.now()
	}
	if err := s.ensureSession(ctx, event.SessionID, domain.VariantAgent); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_events (event_id, session_id, name, payload, decoded, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.Name, event.Payload, event.Decoded, event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// GetEvents returns the raw events of a session in arrival order.
// limit <= 0 returns all of them.
func (s *SQLiteStore) GetEvents(ctx context.Context, sessionID string, limit int) ([]domain.StreamEvent, error) {
	query := `SELECT event_id, session_id, name, payload, decoded, received_at FROM stream_events WHERE session_id = ? ORDER BY seq ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.StreamEvent
	for rows.Next() {
		var ev domain.StreamEvent
		if err := rows.Scan(&ev.EventID, &ev.SessionID, &ev.Name, &ev.Payload, &ev.Decoded, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordEntry stores a log entry. Re-recording an entry id replaces its
// content but keeps its position.
func (s *SQLiteStore) RecordEntry(ctx context.Context, sessionID string, entry *domain.LogEntry) error {
	if err := s.ensureSession(ctx, sessionID, domain.VariantAgent); err != nil {
		return err
	}

	var toolCall, options sql.NullString
	if entry.ToolCall != nil {
		b, err := json.Marshal(entry.ToolCall)
		if err != nil {
			return fmt.Errorf("failed to marshal tool call: %w", err)
		}
		toolCall = nullStringBytes(b)
	}
	if len(entry.ConfirmationOptions) > 0 {
		b, err := json.Marshal(entry.ConfirmationOptions)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		options = nullStringBytes(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO log_entries (entry_id, session_id, role, text, tag, tool_call, options, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET text = excluded.text, tag = excluded.tag, tool_call = excluded.tool_call, options = excluded.options`,
		entry.ID, sessionID, entry.Role, entry.Text, nullString(string(entry.Tag)), toolCall, options, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return nil
}

// GetEntries returns the log entries of a session in log order.
func (s *SQLiteStore) GetEntries(ctx context.Context, sessionID string) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, role, text, tag, tool_call, options, created_at FROM log_entries WHERE session_id = ? ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var tag, toolCall, options sql.NullString
		if err := rows.Scan(&e.ID, &e.Role, &e.Text, &tag, &toolCall, &options, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Tag = domain.EventTag(tag.String)
		if toolCall.Valid {
			var snap domain.ToolCallSnapshot
			if err := json.Unmarshal([]byte(toolCall.String), &snap); err != nil {
				return nil, fmt.Errorf("failed to decode tool call of %s: %w", e.ID, err)
			}
			e.ToolCall = &snap
		}
		if options.Valid {
			if err := json.Unmarshal([]byte(options.String), &e.ConfirmationOptions); err != nil {
				return nil, fmt.Errorf("failed to decode options of %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) ensureSession(ctx context.Context, sessionID string, variant domain.Variant) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, variant, created_at, last_seen_at) VALUES (?, ?, ?, ?)`,
		sessionID, variant, now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
