// Package repository persists the lifecycle audit trail of interaction requests.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/agentui/internal/domain"
)

// SQLiteStore records history events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS request_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			request_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_events_request ON request_events(request_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_request_events_session ON request_events(session_id, seq)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordEvent appends one event.
func (s *SQLiteStore) RecordEvent(ctx context.Context, event domain.HistoryEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_events (event_id, request_id, session_id, type, status, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.RequestID, event.SessionID, string(event.Type), string(event.Status), event.Ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListEvents returns the events of a request in the order they were recorded.
func (s *SQLiteStore) ListEvents(ctx context.Context, requestID string) ([]domain.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, request_id, session_id, type, status, ts FROM request_events WHERE request_id = ? ORDER BY seq`,
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListSessionEvents returns the most recent events of a session, oldest first.
// A limit of zero or less returns every event.
func (s *SQLiteStore) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]domain.HistoryEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, request_id, session_id, type, status, ts FROM (
			SELECT seq, event_id, request_id, session_id, type, status, ts FROM request_events
			WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]domain.HistoryEvent, error) {
	events := make([]domain.HistoryEvent, 0)
	for rows.Next() {
		var (
			e           domain.HistoryEvent
			typ, status string
			tsMillis    int64
		)
		if err := rows.Scan(&e.EventID, &e.RequestID, &e.SessionID, &typ, &status, &tsMillis); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = domain.HistoryEventType(typ)
		e.Status = domain.RequestStatus(status)
		e.Ts = time.UnixMilli(tsMillis).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}
