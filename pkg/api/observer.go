package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the worker runtime for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay call submission or task execution.
type Observer interface {
	// OnRemoteCall is called on the submitting side after the coordinator
	// accepts a call and allocates its return refs.
	OnRemoteCall(ctx context.Context, functionID string, returnRefs []ObjectRef)

	// OnTaskReceived is called by the execution loop once an assigned task
	// has been decoded.
	OnTaskReceived(ctx context.Context, task *Task)

	// OnTaskCompleted is called after every output of a task is published
	// and completion has been reported to the coordinator.
	OnTaskCompleted(ctx context.Context, task *Task, duration time.Duration)

	// OnTaskFailed is called when any stage of task processing fails.
	// task is nil when the failure happened before the task could be
	// decoded.
	OnTaskFailed(ctx context.Context, task *Task, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRemoteCall(ctx context.Context, functionID string, returnRefs []ObjectRef) {}
func (NoopObserver) OnTaskReceived(ctx context.Context, task *Task)                              {}
func (NoopObserver) OnTaskCompleted(ctx context.Context, task *Task, d time.Duration)            {}
func (NoopObserver) OnTaskFailed(ctx context.Context, task *Task, err error)                     {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRemoteCall(ctx context.Context, functionID string, returnRefs []ObjectRef) {
	for _, o := range c.observers {
		o.OnRemoteCall(ctx, functionID, returnRefs)
	}
}

func (c *CompositeObserver) OnTaskReceived(ctx context.Context, task *Task) {
	for _, o := range c.observers {
		o.OnTaskReceived(ctx, task)
	}
}

func (c *CompositeObserver) OnTaskCompleted(ctx context.Context, task *Task, d time.Duration) {
	for _, o := range c.observers {
		o.OnTaskCompleted(ctx, task, d)
	}
}

func (c *CompositeObserver) OnTaskFailed(ctx context.Context, task *Task, err error) {
	for _, o := range c.observers {
		o.OnTaskFailed(ctx, task, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs call / task lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRemoteCall(ctx context.Context, functionID string, returnRefs []ObjectRef) {
	o.Logger.DebugContext(ctx, "remote_call",
		slog.String("function", functionID),
		slog.Int("return_refs", len(returnRefs)),
	)
}

func (o *LoggingObserver) OnTaskReceived(ctx context.Context, task *Task) {
	o.Logger.DebugContext(ctx, "task_received",
		slog.String("task_id", task.ID),
		slog.String("function", task.FunctionID),
	)
}

func (o *LoggingObserver) OnTaskCompleted(ctx context.Context, task *Task, d time.Duration) {
	o.Logger.InfoContext(ctx, "task_completed",
		slog.String("task_id", task.ID),
		slog.String("function", task.FunctionID),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnTaskFailed(ctx context.Context, task *Task, err error) {
	taskID, functionID := "unknown", "unknown"
	if task != nil {
		taskID, functionID = task.ID, task.FunctionID
	}
	o.Logger.ErrorContext(ctx, "task_failed",
		slog.String("task_id", taskID),
		slog.String("function", functionID),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate task durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	remoteCalls       atomic.Int64
	tasksReceived     atomic.Int64
	tasksCompleted    atomic.Int64
	tasksFailed       atomic.Int64
	totalTaskDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RemoteCalls    int64
	TasksReceived  int64
	TasksCompleted int64
	TasksFailed    int64
	TasksInFlight  int64

	AvgTaskDuration time.Duration
}

func (m *BasicMetrics) OnRemoteCall(ctx context.Context, functionID string, returnRefs []ObjectRef) {
	m.remoteCalls.Add(1)
}

func (m *BasicMetrics) OnTaskReceived(ctx context.Context, task *Task) {
	m.tasksReceived.Add(1)
}

func (m *BasicMetrics) OnTaskCompleted(ctx context.Context, task *Task, d time.Duration) {
	m.tasksCompleted.Add(1)
	m.totalTaskDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnTaskFailed(ctx context.Context, task *Task, err error) {
	m.tasksFailed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	received := m.tasksReceived.Load()
	completed := m.tasksCompleted.Load()
	failed := m.tasksFailed.Load()
	totalNs := m.totalTaskDuration.Load()

	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNs / completed)
	}

	return BasicMetricsSnapshot{
		RemoteCalls:     m.remoteCalls.Load(),
		TasksReceived:   received,
		TasksCompleted:  completed,
		TasksFailed:     failed,
		TasksInFlight:   received - completed - failed,
		AvgTaskDuration: avg,
	}
}
