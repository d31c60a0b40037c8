// Package sqlite is a single-file event store for rooms without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AaronLay10/SentientTimeline/internal/storage"
)

// Store is the SQLite event store.
type Store struct {
	db     *sql.DB
	roomID string
}

// Open opens or creates the database at path and its events table.
func Open(ctx context.Context, path, roomID string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")

	st := &Store{db: db, roomID: roomID}
	if err := st.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id   INTEGER PRIMARY KEY AUTOINCREMENT,
			ts         TIMESTAMP NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     TEXT,
			room_id    TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Append inserts an event. sessionID is the timeline instance id, if any.
func (s *Store) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	fieldsJSON, err := storage.EncodeFields(fields)
	if err != nil {
		return err
	}
	var fieldsText *string
	if fieldsJSON != nil {
		str := string(fieldsJSON)
		fieldsText = &str
	}

	_, err = s.db.Exec(
		`INSERT INTO events (ts, level, event, msg, fields, room_id, session_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC(), level, event, storage.NullableString(msg), fieldsText, s.roomID, storage.NullableString(sessionID),
	)
	return err
}

// Query returns the last N events for the room, newest first.
func (s *Store) Query(limit int) ([]storage.EventRow, error) {
	rows, err := s.db.Query(`
		SELECT event_id, ts, level, event, msg, fields, room_id, session_id
		FROM events
		WHERE room_id = ?
		ORDER BY ts DESC, event_id DESC
		LIMIT ?`, s.roomID, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return storage.ScanEvents(rows)
}

// QuerySession returns every event of one timeline instance, oldest first.
func (s *Store) QuerySession(sessionID string) ([]storage.EventRow, error) {
	rows, err := s.db.Query(`
		SELECT event_id, ts, level, event, msg, fields, room_id, session_id
		FROM events
		WHERE room_id = ? AND session_id = ?
		ORDER BY event_id ASC`, s.roomID, sessionID)
	if err != nil {
		return nil, err
	}
	return storage.ScanEvents(rows)
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
