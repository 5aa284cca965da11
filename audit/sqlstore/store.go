// Package sqlstore keeps remediation events in the log_events table of a
// SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/capatazlib/go-medic/health"
)

// DefaultRecentLimit is the number of events Recent returns when no limit is
// given
const DefaultRecentLimit = 50

// tsLayout keeps a fixed width so timestamps sort lexically
const tsLayout = "2006-01-02T15:04:05.000000000Z"

var schema = []string{`
CREATE TABLE IF NOT EXISTS log_events (
	id        TEXT PRIMARY KEY,
	server_id TEXT NOT NULL,
	service   TEXT NOT NULL,
	level     TEXT,
	line      TEXT NOT NULL,
	ts        TEXT NOT NULL,
	issue     TEXT NOT NULL DEFAULT '',
	action    TEXT NOT NULL DEFAULT '',
	attempt   INTEGER NOT NULL DEFAULT 0,
	success   INTEGER NOT NULL DEFAULT 0,
	detail    TEXT NOT NULL DEFAULT '',
	error     TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS log_events_service_ts ON log_events (service, ts)`,
}

// Store is a health.Sink backed by SQLite
type Store struct {
	db *sql.DB
}

// Open opens (creating it if needed) the database at the given path and
// ensures the log_events table exists
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open event store: %w", err)
	}
	// a single connection keeps :memory: databases alive and avoids writer
	// contention
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not migrate event store: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts the event. Events without a server ID are not stored.
func (s *Store) Record(ctx context.Context, ev health.RemediationEvent) error {
	if ev.ServerID == "" {
		return nil
	}
	id := ev.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	created := ev.Created
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO log_events
			(id, server_id, service, level, line, ts, issue, action, attempt, success, detail, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		ev.ServerID,
		ev.Service,
		ev.Level(),
		ev.Line(),
		created.UTC().Format(tsLayout),
		ev.Issue,
		ev.Action.String(),
		ev.Attempt,
		boolToInt(ev.Success),
		ev.Detail,
		ev.Error,
	)
	if err != nil {
		return fmt.Errorf("could not insert event for service '%s': %w", ev.Service, err)
	}
	return nil
}

// Recent returns the latest events, newest first. An empty service returns the
// events of every service.
func (s *Store) Recent(ctx context.Context, service string, limit int) ([]health.RemediationEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `SELECT id, server_id, service, ts, issue, action, attempt, success, detail, error
		FROM log_events`
	args := []interface{}{}
	if service != "" {
		query += ` WHERE service = ?`
		args = append(args, service)
	}
	query += ` ORDER BY ts DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query events: %w", err)
	}
	defer rows.Close()

	acc := make([]health.RemediationEvent, 0, limit)
	for rows.Next() {
		var (
			ev      health.RemediationEvent
			id, ts  string
			action  string
			attempt int64
		)
		err := rows.Scan(
			&id, &ev.ServerID, &ev.Service, &ts, &ev.Issue, &action,
			&attempt, &ev.Success, &ev.Detail, &ev.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("could not scan event row: %w", err)
		}
		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid event id %q: %w", id, err)
		}
		if ev.Created, err = time.Parse(tsLayout, ts); err != nil {
			return nil, fmt.Errorf("invalid event timestamp %q: %w", ts, err)
		}
		if action != "" {
			if err := ev.Action.UnmarshalText([]byte(action)); err != nil {
				return nil, err
			}
		}
		ev.Attempt = uint32(attempt)
		acc = append(acc, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read events: %w", err)
	}
	return acc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
