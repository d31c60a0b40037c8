package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/SentientTimeline/internal/storage"
)

// Options configures the Postgres connection.
type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	RoomID   string
}

// ConnString renders a lib/pq key/value connection string.
func (o Options) ConnString() string {
	if o.Password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			o.Host, o.Port, o.User, o.Password, o.Database)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		o.Host, o.Port, o.User, o.Database)
}

// Client is the Postgres event store.
type Client struct {
	db     *sql.DB
	roomID string
}

// New connects, pings and creates the events table if needed.
func New(ctx context.Context, opts Options) (*Client, error) {
	db, err := sql.Open("postgres", opts.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:     db,
		roomID: opts.RoomID,
	}

	if err := client.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return client, nil
}

func (c *Client) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			room_id    TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_room_id ON events(room_id);
		CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// Append inserts an event. sessionID is the timeline instance id, if any.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	fieldsJSON, err := storage.EncodeFields(fields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, room_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, storage.NullableString(msg), fieldsJSON, c.roomID, storage.NullableString(sessionID))
	return err
}

// Query returns the last N events for the room, newest first.
func (c *Client) Query(limit int) ([]storage.EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, room_id, session_id
		FROM events
		WHERE room_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.roomID, storage.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return storage.ScanEvents(rows)
}

// QuerySession returns every event of one timeline instance, oldest first.
func (c *Client) QuerySession(sessionID string) ([]storage.EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, room_id, session_id
		FROM events
		WHERE room_id = $1 AND session_id = $2
		ORDER BY event_id ASC
	`
	rows, err := c.db.Query(query, c.roomID, sessionID)
	if err != nil {
		return nil, err
	}
	return storage.ScanEvents(rows)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
