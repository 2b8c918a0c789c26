// Package gclog is the fleet's garbage-collection audit trail: every time
// inventory repairs a zero-exit-time container or recycles one past its
// grace period, it writes a row here. the table is purely observational —
// nothing in the core ever reads it back to decide what to do next. slot
// accounting, inventory listings and GC itself are always recomputed fresh
// from the daemons (spec.md §3 "no persistent counter"); this log exists so
// an operator can answer "what did GC do to node X last night" without
// grepping log files.
package gclog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Action is the kind of GC event recorded.
type Action string

const (
	ActionSentinelRepair Action = "sentinel_repair"
	ActionRecycled       Action = "recycled"
)

// Log wraps the sqlite connection backing the GC audit trail.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS gc_events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    node         TEXT NOT NULL,
    container_id TEXT NOT NULL,
    action       TEXT NOT NULL,
    detail       TEXT NOT NULL DEFAULT '',
    occurred_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens (creating if necessary) the sqlite database at path and runs
// the schema migration. the parent directory is created if missing so
// callers don't have to pre-provision it.
func Open(path string, logger *slog.Logger) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating gc log directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening gc log at %q: %w", path, err)
	}
	// a single writer avoids "database is locked" errors from sqlite's
	// lack of concurrent-write support; GC events are low-volume enough
	// that serializing writes costs nothing observable.
	db.SetMaxOpenConns(1)

	log := &Log{db: db, logger: logger}
	if err := log.migrate(); err != nil {
		return nil, err
	}
	return log, nil
}

func (l *Log) migrate() error {
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating gc log schema: %w", err)
	}
	return nil
}

// Record appends one GC event. a failure to record is logged but never
// propagated — the audit trail is best-effort, and GC itself must not fail
// because sqlite did.
func (l *Log) Record(node, containerID string, action Action, detail string) {
	_, err := l.db.Exec(
		`INSERT INTO gc_events (node, container_id, action, detail) VALUES (?, ?, ?, ?)`,
		node, containerID, string(action), detail,
	)
	if err != nil {
		l.logger.Warn("failed to record gc event", "node", node, "container", containerID, "action", action, "error", err)
	}
}

// Close releases the underlying connection pool.
func (l *Log) Close() error {
	return l.db.Close()
}
