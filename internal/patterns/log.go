// Package patterns records external work actions and detects work episodes
// in them. Actions (tool calls, file edits, searches) are appended to an
// embedded SQLite log; the detector groups them into episodes by idle gap
// and classifies each episode to produce candidate memories the caller may
// persist. The detector only ever reads the Record Store, never writes it.
package patterns

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // embedded SQLite driver
)

// Action kinds recorded in the log.
const (
	ActionToolCall = "tool_call"
	ActionFileEdit = "file_edit"
	ActionSearch   = "search"
	ActionNote     = "note"
)

// Action is one recorded external event.
type Action struct {
	ID         int64     `json:"id"`
	Session    string    `json:"session"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target,omitempty"` // tool name, file path, query
	Detail     string    `json:"detail,omitempty"`
	Project    string    `json:"project,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	target      TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	project     TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_session ON actions(session, occurred_at);
CREATE INDEX IF NOT EXISTS idx_actions_time ON actions(occurred_at);
`

// Log is the append-only SQLite action log.
type Log struct {
	db *sql.DB
}

// OpenLog opens (or creates) the action log at path. WAL mode keeps the
// background housekeeping reads from blocking appends.
func OpenLog(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("patterns: open action log: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("patterns: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("patterns: create schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Record appends one action. A zero OccurredAt is stamped now.
func (l *Log) Record(ctx context.Context, a Action) error {
	if a.Session == "" {
		return fmt.Errorf("patterns: action session is required")
	}
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO actions (session, kind, target, detail, project, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Session, a.Kind, a.Target, a.Detail, a.Project, a.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("patterns: record action: %w", err)
	}
	return nil
}

// SessionActions returns a session's actions in chronological order.
func (l *Log) SessionActions(ctx context.Context, session string) ([]Action, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, session, kind, target, detail, project, occurred_at
		FROM actions WHERE session = ? ORDER BY occurred_at, id`, session)
	if err != nil {
		return nil, fmt.Errorf("patterns: query session actions: %w", err)
	}
	return scanActions(rows)
}

// ActionsSince returns all actions recorded at or after the cutoff, in
// chronological order.
func (l *Log) ActionsSince(ctx context.Context, cutoff time.Time) ([]Action, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, session, kind, target, detail, project, occurred_at
		FROM actions WHERE occurred_at >= ? ORDER BY occurred_at, id`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("patterns: query actions since: %w", err)
	}
	return scanActions(rows)
}

// Prune deletes actions older than the cutoff. Returns how many rows went.
func (l *Log) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM actions WHERE occurred_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("patterns: prune actions: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the log database.
func (l *Log) Close() error { return l.db.Close() }

func scanActions(rows *sql.Rows) ([]Action, error) {
	defer func() { _ = rows.Close() }()
	var out []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.Session, &a.Kind, &a.Target, &a.Detail, &a.Project, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("patterns: scan action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
