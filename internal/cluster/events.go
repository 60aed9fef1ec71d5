package cluster

import (
	"database/sql"
	"sync"
	"time"

	"github.com/phautamaki/orchard/pkg/api"
)

// NoopEventLog discards all events.
type NoopEventLog struct{}

func (NoopEventLog) Append(ev api.TaskEvent) error                 { return nil }
func (NoopEventLog) Events(taskID string) ([]api.TaskEvent, error) { return nil, nil }

// MemoryEventLog keeps task history in process memory, in append order.
type MemoryEventLog struct {
	mu     sync.Mutex
	events []api.TaskEvent
}

// Ensure the in-process logs implement the interface.
var (
	_ api.EventLog = NoopEventLog{}
	_ api.EventLog = (*MemoryEventLog)(nil)
)

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{}
}

func (l *MemoryEventLog) Append(ev api.TaskEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *MemoryEventLog) Events(taskID string) ([]api.TaskEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if taskID == "" {
		out := make([]api.TaskEvent, len(l.events))
		copy(out, l.events)
		return out, nil
	}
	var out []api.TaskEvent
	for _, ev := range l.events {
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// SQLiteEventLog stores task history in SQLite.
type SQLiteEventLog struct {
	db *sql.DB
}

var _ api.EventLog = (*SQLiteEventLog)(nil)

func NewSQLiteEventLog(db *sql.DB) (*SQLiteEventLog, error) {
	l := &SQLiteEventLog{db: db}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLiteEventLog) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			function_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_task_events_task_id ON task_events(task_id, id);
	`)
	return err
}

func (l *SQLiteEventLog) Append(ev api.TaskEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.db.Exec(`
		INSERT INTO task_events (task_id, at, type, function_id, detail)
		VALUES (?, ?, ?, ?, ?)`,
		ev.TaskID,
		at.UnixNano(),
		string(ev.Type),
		ev.FunctionID,
		ev.Detail,
	)
	return err
}

func (l *SQLiteEventLog) Events(taskID string) ([]api.TaskEvent, error) {
	query := `
		SELECT task_id, at, type, function_id, detail
		FROM task_events`
	args := []any{}
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY id ASC`

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.TaskEvent
	for rows.Next() {
		var (
			id     string
			atN    int64
			typ    string
			fn     string
			detail string
		)
		if err := rows.Scan(&id, &atN, &typ, &fn, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.TaskEvent{
			TaskID:     id,
			At:         time.Unix(0, atN),
			Type:       api.EventType(typ),
			FunctionID: fn,
			Detail:     detail,
		})
	}
	return out, rows.Err()
}
