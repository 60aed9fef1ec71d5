package api

import "context"

// Handle identifies a live worker session with the coordinator. It is
// opaque to the worker: obtained from Connect, passed back on every call,
// invalidated by Disconnect. The empty handle is never valid.
type Handle string

// SchedulerInfo is a diagnostic snapshot of coordinator state, intended for
// tests, debugging and operator tooling rather than scheduling decisions.
type SchedulerInfo struct {
	// Workers is the number of connected sessions, the driver included.
	Workers int

	// Functions maps each registered function identifier to its declared
	// return arity.
	Functions map[string]int

	// PendingTasks counts scheduled tasks not yet handed to a worker.
	PendingTasks int

	TasksScheduled int64
	TasksCompleted int64

	// ObjectsStored counts refs holding a published value or an alias.
	ObjectsStored int
}

// Coordinator is the worker's window on the rest of the system: session
// management, function registration, call scheduling, object store access
// and task assignment.
//
// The current implementations are in-process, but the method set is the
// exact surface a remote coordinator would expose, so every call takes a
// context and a session handle and nothing assumes shared memory. Calls
// documented as blocking respect context cancellation.
//
// GetRaw, GetObject and IsRaw block until the ref resolves to a published
// value; this parking of readers on unwritten refs is the system's
// synchronization primitive. WaitForNextTask blocks until a task is
// assigned.
type Coordinator interface {
	// Connect establishes a session. The addresses describe the scheduler,
	// the object store and the worker itself; in-process implementations
	// treat them as labels.
	Connect(ctx context.Context, schedulerAddr, storeAddr, workerAddr string) (Handle, error)

	// Disconnect ends the session. The handle is invalid afterwards.
	Disconnect(ctx context.Context, h Handle) error

	// IsConnected reports whether h names a live session.
	IsConnected(h Handle) bool

	// RegisterFunction announces that this worker can execute functionID
	// and declares its return arity, so the scheduler can validate calls
	// and allocate the right number of result refs.
	RegisterFunction(ctx context.Context, h Handle, functionID string, returnArity int) error

	// RemoteCall submits a wire-encoded task for execution. The coordinator
	// allocates the task's result refs and returns them immediately; it
	// never waits for the task to run.
	RemoteCall(ctx context.Context, h Handle, task []byte) ([]ObjectRef, error)

	// NewObjectRef allocates a fresh unwritten ref.
	NewObjectRef(ctx context.Context, h Handle) (ObjectRef, error)

	// PutRaw publishes a columnar payload under ref.
	PutRaw(ctx context.Context, h Handle, ref ObjectRef, c *Columnar) error

	// GetRaw fetches the columnar payload behind ref, blocking until it is
	// published.
	GetRaw(ctx context.Context, h Handle, ref ObjectRef) (*Columnar, error)

	// IsRaw blocks until ref resolves, then reports whether the payload is
	// columnar (true) or structural (false).
	IsRaw(ctx context.Context, h Handle, ref ObjectRef) (bool, error)

	// PutObject publishes a structural payload under ref. contained lists
	// every ref embedded in the payload, so the store can track the
	// reference graph.
	PutObject(ctx context.Context, h Handle, ref ObjectRef, v *Value, contained []ObjectRef) error

	// GetObject fetches the structural payload behind ref, blocking until
	// it is published.
	GetObject(ctx context.Context, h Handle, ref ObjectRef) (*Value, error)

	// AliasRefs makes alias resolve to whatever target resolves to,
	// transitively. alias must be unwritten and not already aliased.
	AliasRefs(ctx context.Context, h Handle, alias, target ObjectRef) error

	// RequestObject hints that ref will be read soon, so a distributed
	// store can start moving the value toward this worker. It never blocks.
	RequestObject(ctx context.Context, h Handle, ref ObjectRef) error

	// WaitForNextTask blocks until a task is assigned to this worker and
	// returns it wire-encoded.
	WaitForNextTask(ctx context.Context, h Handle) ([]byte, error)

	// NotifyTaskCompleted reports that the last assigned task finished and
	// all of its outputs are published.
	NotifyTaskCompleted(ctx context.Context, h Handle) error

	// SchedulerInfo returns a diagnostic snapshot.
	SchedulerInfo(ctx context.Context, h Handle) (SchedulerInfo, error)
}
