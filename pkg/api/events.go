package api

import "time"

// EventType identifies a task history event.
type EventType string

const (
	// EventTaskScheduled: a RemoteCall was accepted and return refs were
	// allocated.
	EventTaskScheduled EventType = "task.scheduled"

	// EventTaskAssigned: the task was handed to a worker via
	// WaitForNextTask.
	EventTaskAssigned EventType = "task.assigned"

	// EventTaskCompleted: the executing worker reported completion after
	// publishing all outputs.
	EventTaskCompleted EventType = "task.completed"
)

// TaskEvent is a minimal append-only history record for audit/debugging.
// It is intentionally small and stable; richer history can be layered later.
type TaskEvent struct {
	TaskID string
	At     time.Time
	Type   EventType

	// Optional context.
	FunctionID string

	// Small, human-oriented details (e.g. ref list, session handle).
	// Keep this low-volume: do NOT dump large payloads here.
	Detail string
}

// EventLog records task history. Implementations must be safe for
// concurrent appends; reads may lag writes.
type EventLog interface {
	Append(ev TaskEvent) error

	// Events returns the recorded history for a task in append order. An
	// empty taskID returns everything.
	Events(taskID string) ([]TaskEvent, error)
}
