package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS playback_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	node        TEXT    NOT NULL,
	module      TEXT    NOT NULL,
	identity    TEXT    NOT NULL,
	state       TEXT    NOT NULL,
	failures    INTEGER NOT NULL,
	last_error  TEXT    NOT NULL DEFAULT '',
	deadline_ms INTEGER NOT NULL,
	recorded_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS playback_events_node ON playback_events (node, recorded_ms);
`

// History records snapshot changes in a SQLite database. Snapshots equal to
// the previous one for the same node are skipped.
type History struct {
	db     *sql.DB
	logger *slog.Logger

	mu   sync.Mutex
	last map[string]Snapshot
}

// OpenHistory opens or creates the database at path. ":memory:" keeps it in
// memory for the life of the History.
func OpenHistory(path string, logger *slog.Logger) (*History, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection: an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &History{
		db:     db,
		logger: logger.WithGroup("monitor.History"),
		last:   make(map[string]Snapshot),
	}, nil
}

// Update records s when it differs from the previous snapshot of its node.
func (h *History) Update(s Snapshot) {
	h.mu.Lock()
	prev, seen := h.last[s.Node]
	if seen && !s.Changed(prev) {
		h.mu.Unlock()
		return
	}
	h.last[s.Node] = s
	h.mu.Unlock()

	if err := h.Record(context.Background(), s); err != nil {
		h.logger.Error("Failed to record snapshot", "error", err, "node", s.Node)
	}
}

// Record writes s unconditionally.
func (h *History) Record(ctx context.Context, s Snapshot) error {
	recorded := s.Time
	if recorded.IsZero() {
		recorded = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO playback_events (
		   node, module, identity, state, failures, last_error, deadline_ms, recorded_ms
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Node, s.ModuleName, s.Identity, s.State, s.Failures, s.LastError,
		s.Deadline.UnixMilli(), recorded.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert playback event: %w", err)
	}
	return nil
}

// Recent returns up to limit snapshots, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT node, module, identity, state, failures, last_error, deadline_ms, recorded_ms
		   FROM playback_events
		  ORDER BY id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query playback events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var deadline, recorded int64
		if err := rows.Scan(&s.Node, &s.ModuleName, &s.Identity, &s.State,
			&s.Failures, &s.LastError, &deadline, &recorded); err != nil {
			return nil, fmt.Errorf("scan playback event: %w", err)
		}
		s.Deadline = time.UnixMilli(deadline)
		s.Time = time.UnixMilli(recorded)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}
