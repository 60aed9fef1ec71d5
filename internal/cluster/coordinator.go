// Package cluster contains the in-process coordinator: the scheduler and
// object-store front end every worker of a cluster talks to.
//
// The coordinator owns the session table and the function table, allocates
// return refs for remote calls, and moves tasks from callers to eligible
// workers through a task queue. It holds no task state of its own beyond
// the current assignment per session; everything durable lives in the
// pluggable store, queue and event log.
package cluster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phautamaki/orchard/internal/store"
	"github.com/phautamaki/orchard/internal/taskqueue"
	"github.com/phautamaki/orchard/internal/wire"
	"github.com/phautamaki/orchard/pkg/api"
)

// ErrUnknownFunction is returned by RemoteCall when the task names a
// function no worker has registered.
var ErrUnknownFunction = errors.New("function is not registered with the scheduler")

// ineligibleRequeueDelay is how long a task stays parked after a worker
// dequeued it but could not run it. Long enough to let an eligible worker
// take it, short enough not to matter for throughput.
const ineligibleRequeueDelay = 50 * time.Millisecond

// session is the coordinator's view of one connected worker. The worker
// loop runs a single task at a time, so one assignment field is enough.
type session struct {
	workerAddr  string
	connectedAt time.Time

	// functions this session registered; the session may only be handed
	// tasks for these.
	functions map[string]bool

	currentTask string
	currentFn   string
}

type localCoordinator struct {
	store  store.Store
	queue  taskqueue.Queue
	events api.EventLog
	codec  wire.Codec
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[api.Handle]*session

	// functions maps function id to declared return arity. Entries outlive
	// the sessions that created them: arity is cluster-wide knowledge, and
	// a later worker registering the same function must agree with it.
	functions map[string]int

	tasksScheduled atomic.Int64
	tasksCompleted atomic.Int64
}

// Ensure localCoordinator implements the full surface.
var _ api.Coordinator = (*localCoordinator)(nil)

// Config describes how to construct a coordinator. Zero-value fields get
// in-memory / no-op defaults.
type Config struct {
	Store  store.Store
	Queue  taskqueue.Queue
	Events api.EventLog
	Codec  wire.Codec
	Logger *slog.Logger
}

// NewCoordinator creates an in-process coordinator from cfg.
func NewCoordinator(cfg Config) api.Coordinator {
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Queue == nil {
		cfg.Queue = taskqueue.NewInMemoryQueue(0)
	}
	if cfg.Events == nil {
		cfg.Events = NoopEventLog{}
	}
	if cfg.Codec == nil {
		cfg.Codec = wire.CBOR()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &localCoordinator{
		store:     cfg.Store,
		queue:     cfg.Queue,
		events:    cfg.Events,
		codec:     cfg.Codec,
		logger:    cfg.Logger,
		sessions:  make(map[api.Handle]*session),
		functions: make(map[string]int),
	}
}

// NewInMemoryCoordinator creates a coordinator where everything lives in
// process memory. Nothing survives a restart.
func NewInMemoryCoordinator() api.Coordinator {
	return NewCoordinator(Config{})
}

// NewSQLiteCoordinator creates a coordinator whose object store, task queue
// and event log all live in the given SQLite database.
func NewSQLiteCoordinator(db *sql.DB) (api.Coordinator, error) {
	codec := wire.CBOR()

	st, err := store.NewSQLiteStore(db, codec)
	if err != nil {
		return nil, err
	}
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	ev, err := NewSQLiteEventLog(db)
	if err != nil {
		return nil, err
	}

	return NewCoordinator(Config{
		Store:  st,
		Queue:  q,
		Events: ev,
		Codec:  codec,
	}), nil
}

// NewRedisCoordinator creates a coordinator whose object store and task
// queue live in Redis under the given key prefix, so workers in other
// processes can share them.
func NewRedisCoordinator(client *redis.Client, prefix string) api.Coordinator {
	codec := wire.CBOR()
	return NewCoordinator(Config{
		Store: store.NewRedisStore(client, prefix, codec),
		Queue: taskqueue.NewRedisQueue(client, prefix),
		Codec: codec,
	})
}

// session looks up a live session, or returns the NotConnectedError the
// failed operation should surface.
func (c *localCoordinator) session(op string, h api.Handle) (*session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.sessions[h]
	if s == nil {
		return nil, &api.NotConnectedError{Op: op}
	}
	return s, nil
}

func (c *localCoordinator) appendEvent(ev api.TaskEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := c.events.Append(ev); err != nil {
		// History is best-effort; scheduling does not depend on it.
		c.logger.Warn("event append failed",
			slog.String("task_id", ev.TaskID),
			slog.Any("error", err),
		)
	}
}

func (c *localCoordinator) Connect(ctx context.Context, schedulerAddr, storeAddr, workerAddr string) (api.Handle, error) {
	h := api.Handle(uuid.New().String())

	c.mu.Lock()
	c.sessions[h] = &session{
		workerAddr:  workerAddr,
		connectedAt: time.Now(),
		functions:   make(map[string]bool),
	}
	workers := len(c.sessions)
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "worker_connected",
		slog.String("worker", workerAddr),
		slog.Int("workers", workers),
	)
	return h, nil
}

func (c *localCoordinator) Disconnect(ctx context.Context, h api.Handle) error {
	c.mu.Lock()
	s := c.sessions[h]
	if s == nil {
		c.mu.Unlock()
		return &api.NotConnectedError{Op: "disconnect"}
	}
	delete(c.sessions, h)
	workers := len(c.sessions)
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "worker_disconnected",
		slog.String("worker", s.workerAddr),
		slog.Int("workers", workers),
	)
	return nil
}

func (c *localCoordinator) IsConnected(h api.Handle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[h] != nil
}

func (c *localCoordinator) RegisterFunction(ctx context.Context, h api.Handle, functionID string, returnArity int) error {
	if functionID == "" {
		return errors.New("function id must not be empty")
	}
	if returnArity < 1 {
		return fmt.Errorf("function %s: return arity must be at least 1, got %d", functionID, returnArity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions[h]
	if s == nil {
		return &api.NotConnectedError{Op: "registerFunction"}
	}
	if want, exists := c.functions[functionID]; exists && want != returnArity {
		return fmt.Errorf("function %s is already registered with return arity %d, not %d", functionID, want, returnArity)
	}

	c.functions[functionID] = returnArity
	s.functions[functionID] = true
	return nil
}

func (c *localCoordinator) RemoteCall(ctx context.Context, h api.Handle, raw []byte) ([]api.ObjectRef, error) {
	if _, err := c.session("remoteCall", h); err != nil {
		return nil, err
	}

	var task api.Task
	if err := c.codec.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	if task.FunctionID == "" {
		return nil, errors.New("task names no function")
	}
	if len(task.ReturnRefs) != 0 {
		return nil, errors.New("return refs are allocated by the scheduler, not the caller")
	}

	c.mu.RLock()
	arity, known := c.functions[task.FunctionID]
	c.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, task.FunctionID)
	}

	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	refs := make([]api.ObjectRef, arity)
	for i := range refs {
		ref, err := c.store.NewRef(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocating return ref: %w", err)
		}
		refs[i] = ref
	}
	task.ReturnRefs = refs

	payload, err := c.codec.Marshal(&task)
	if err != nil {
		return nil, fmt.Errorf("encoding task: %w", err)
	}

	if err := c.queue.Enqueue(ctx, taskqueue.Item{
		TaskID:     task.ID,
		FunctionID: task.FunctionID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("enqueueing task: %w", err)
	}

	c.tasksScheduled.Add(1)
	c.appendEvent(api.TaskEvent{
		TaskID:     task.ID,
		Type:       api.EventTaskScheduled,
		FunctionID: task.FunctionID,
		Detail:     fmt.Sprintf("refs %v", refs),
	})
	c.logger.DebugContext(ctx, "task_scheduled",
		slog.String("task_id", task.ID),
		slog.String("function", task.FunctionID),
		slog.Int("return_refs", arity),
	)
	return refs, nil
}

func (c *localCoordinator) NewObjectRef(ctx context.Context, h api.Handle) (api.ObjectRef, error) {
	if _, err := c.session("newObjectRef", h); err != nil {
		return api.NilRef, err
	}
	return c.store.NewRef(ctx)
}

func (c *localCoordinator) PutRaw(ctx context.Context, h api.Handle, ref api.ObjectRef, col *api.Columnar) error {
	if _, err := c.session("putRaw", h); err != nil {
		return err
	}
	if col == nil {
		return errors.New("nil columnar payload")
	}
	data, err := c.codec.Marshal(col)
	if err != nil {
		return fmt.Errorf("encoding columnar payload: %w", err)
	}
	return c.store.PutRaw(ctx, ref, data)
}

func (c *localCoordinator) GetRaw(ctx context.Context, h api.Handle, ref api.ObjectRef) (*api.Columnar, error) {
	if _, err := c.session("getRaw", h); err != nil {
		return nil, err
	}
	data, err := c.store.GetRaw(ctx, ref)
	if err != nil {
		return nil, err
	}
	var col api.Columnar
	if err := c.codec.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("decoding columnar payload: %w", err)
	}
	return &col, nil
}

func (c *localCoordinator) IsRaw(ctx context.Context, h api.Handle, ref api.ObjectRef) (bool, error) {
	if _, err := c.session("isRaw", h); err != nil {
		return false, err
	}
	return c.store.IsRaw(ctx, ref)
}

func (c *localCoordinator) PutObject(ctx context.Context, h api.Handle, ref api.ObjectRef, v *api.Value, contained []api.ObjectRef) error {
	if _, err := c.session("putObject", h); err != nil {
		return err
	}
	return c.store.PutValue(ctx, ref, v, contained)
}

func (c *localCoordinator) GetObject(ctx context.Context, h api.Handle, ref api.ObjectRef) (*api.Value, error) {
	if _, err := c.session("getObject", h); err != nil {
		return nil, err
	}
	return c.store.GetValue(ctx, ref)
}

func (c *localCoordinator) AliasRefs(ctx context.Context, h api.Handle, alias, target api.ObjectRef) error {
	if _, err := c.session("aliasRefs", h); err != nil {
		return err
	}
	return c.store.Alias(ctx, alias, target)
}

func (c *localCoordinator) RequestObject(ctx context.Context, h api.Handle, ref api.ObjectRef) error {
	if _, err := c.session("requestObject", h); err != nil {
		return err
	}
	return c.store.RequestRef(ctx, ref)
}

// claim records it as h's current assignment if the session is still live
// and registered the item's function. The three outcomes are: claimed,
// not eligible (put the item back), or session gone (the error).
func (c *localCoordinator) claim(h api.Handle, it *taskqueue.Item) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions[h]
	if s == nil {
		return false, &api.NotConnectedError{Op: "waitForNextTask"}
	}
	if !s.functions[it.FunctionID] {
		return false, nil
	}
	s.currentTask = it.TaskID
	s.currentFn = it.FunctionID
	return true, nil
}

func (c *localCoordinator) WaitForNextTask(ctx context.Context, h api.Handle) ([]byte, error) {
	if _, err := c.session("waitForNextTask", h); err != nil {
		return nil, err
	}

	for {
		it, err := c.queue.Dequeue(ctx)
		if err != nil {
			return nil, err
		}

		claimed, err := c.claim(h, it)
		if err != nil {
			// Session died while we were blocked; the task goes back.
			if reqErr := c.queue.Enqueue(ctx, *it); reqErr != nil {
				c.logger.Error("requeue after disconnect failed",
					slog.String("task_id", it.TaskID),
					slog.Any("error", reqErr),
				)
			}
			return nil, err
		}
		if !claimed {
			// This worker never registered the function. Park the item
			// briefly so an eligible worker can take it, and hold this
			// worker back so it does not spin on the same item.
			it.NotBefore = time.Now().Add(ineligibleRequeueDelay)
			if err := c.queue.Enqueue(ctx, *it); err != nil {
				return nil, fmt.Errorf("requeueing task %s: %w", it.TaskID, err)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(ineligibleRequeueDelay):
			}
			continue
		}

		c.appendEvent(api.TaskEvent{
			TaskID:     it.TaskID,
			Type:       api.EventTaskAssigned,
			FunctionID: it.FunctionID,
			Detail:     "session " + string(h),
		})
		return it.Payload, nil
	}
}

func (c *localCoordinator) NotifyTaskCompleted(ctx context.Context, h api.Handle) error {
	c.mu.Lock()
	s := c.sessions[h]
	if s == nil {
		c.mu.Unlock()
		return &api.NotConnectedError{Op: "notifyTaskCompleted"}
	}
	taskID, functionID := s.currentTask, s.currentFn
	s.currentTask, s.currentFn = "", ""
	c.mu.Unlock()

	if taskID == "" {
		return errors.New("session has no assigned task")
	}

	c.tasksCompleted.Add(1)
	c.appendEvent(api.TaskEvent{
		TaskID:     taskID,
		Type:       api.EventTaskCompleted,
		FunctionID: functionID,
	})
	c.logger.DebugContext(ctx, "task_completed",
		slog.String("task_id", taskID),
		slog.String("function", functionID),
	)
	return nil
}

func (c *localCoordinator) SchedulerInfo(ctx context.Context, h api.Handle) (api.SchedulerInfo, error) {
	if _, err := c.session("schedulerInfo", h); err != nil {
		return api.SchedulerInfo{}, err
	}

	st, err := c.store.Stats(ctx)
	if err != nil {
		return api.SchedulerInfo{}, err
	}

	c.mu.RLock()
	workers := len(c.sessions)
	functions := make(map[string]int, len(c.functions))
	for id, arity := range c.functions {
		functions[id] = arity
	}
	c.mu.RUnlock()

	return api.SchedulerInfo{
		Workers:        workers,
		Functions:      functions,
		PendingTasks:   c.queue.Len(),
		TasksScheduled: c.tasksScheduled.Load(),
		TasksCompleted: c.tasksCompleted.Load(),
		ObjectsStored:  st.Objects + st.Raw + st.Aliases,
	}, nil
}
