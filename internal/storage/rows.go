// Package storage holds what the event stores share: the row shape and the
// scanning of query results.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultQueryLimit and MaxQueryLimit bound Query calls on every store.
const (
	DefaultQueryLimit = 200
	MaxQueryLimit     = 10000
)

// EventRow represents a stored event.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	RoomID    string                 `json:"room_id"`
	SessionID *string                `json:"session_id,omitempty"`
}

// ClampLimit applies the default and maximum query limits.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// EncodeFields marshals event fields, returning nil for nil maps.
func EncodeFields(fields map[string]interface{}) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	return b, nil
}

// NullableString returns nil for the empty string.
func NullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ScanEvents reads rows selected as
// event_id, ts, level, event, msg, fields, room_id, session_id.
func ScanEvents(rows *sql.Rows) ([]EventRow, error) {
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.RoomID, &sessionID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		out = append(out, e)
	}

	return out, rows.Err()
}
