package orchard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/phautamaki/orchard/internal/cluster"
	"github.com/phautamaki/orchard/internal/store"
	"github.com/phautamaki/orchard/internal/taskqueue"
	"github.com/phautamaki/orchard/pkg/worker"
)

// LocalCluster bundles a coordinator, the shared registries, a connected
// driver worker, and a pool of executing workers into a single-process
// cluster for development, tests, and small deployments.
//
// Typical usage:
//
//	c := orchard.NewLocalCluster()
//	orchard.Declare("math.add").
//	    In(orchard.Int, orchard.Int).
//	    Out(orchard.Int).
//	    Do(addImpl).
//	    MustRegister(ctx, c.Driver)
//
//	_ = c.StartWorkers(ctx, 2)
//	defer c.Stop()
//
//	ref, _ := c.Call(ctx, "math.add", 2, 3)
//	sum, _ := c.Get(ctx, ref)
//
// Functions registered through the Driver before StartWorkers are announced
// to every worker the pool starts, so the pool can execute them.
type LocalCluster struct {
	// Coordinator is the scheduler and object store behind this cluster.
	Coordinator Coordinator

	// Functions and Types are shared by the driver and every pool worker.
	Functions *FunctionRegistry
	Types     *TypeRegistry

	// Driver is a connected worker that never enters the main loop. Use it
	// to register functions, schedule calls, and move objects.
	Driver *Worker

	// Events records task lifecycle events when the backend keeps them.
	Events EventLog

	observer Observer

	// Backend resources opened on the cluster's behalf, closed by Close.
	closers []io.Closer

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers []*Worker
	running bool
}

// NewLocalCluster constructs a cluster backed by process-local memory.
func NewLocalCluster() *LocalCluster {
	return NewLocalClusterWithObserver(NoopObserver{})
}

// NewLocalClusterWithObserver is NewLocalCluster with a task lifecycle
// observer attached to every pool worker.
func NewLocalClusterWithObserver(obs Observer) *LocalCluster {
	events := cluster.NewMemoryEventLog()
	coord := cluster.NewCoordinator(cluster.Config{
		Store:  store.NewMemoryStore(),
		Queue:  taskqueue.NewInMemoryQueue(1024),
		Events: events,
	})
	return newLocalCluster(coord, events, obs)
}

func newLocalCluster(coord Coordinator, events EventLog, obs Observer) *LocalCluster {
	if obs == nil {
		obs = NoopObserver{}
	}
	functions := NewFunctionRegistry()
	types := NewTypeRegistry()

	// The driver carries the observer too, so it sees the scheduling side.
	driver := NewWorkerWithObserver(coord, functions, types, obs)
	// An in-process coordinator never refuses a session.
	if err := driver.Connect(context.Background(), "local", "local", "driver"); err != nil {
		panic(fmt.Sprintf("orchard: connecting the driver: %v", err))
	}

	return &LocalCluster{
		Coordinator: coord,
		Functions:   functions,
		Types:       types,
		Driver:      driver,
		Events:      events,
		observer:    obs,
	}
}

// StartWorkers connects 'concurrency' workers and runs each one's main loop
// in its own goroutine until Stop. Every function currently registered
// through the Driver is announced to each new worker first, making the pool
// eligible for those tasks.
//
// Calling StartWorkers again without Stop returns an error.
func (c *LocalCluster) StartWorkers(ctx context.Context, concurrency int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errors.New("orchard: LocalCluster already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	workers := make([]*Worker, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		w := worker.NewWithOptions(c.Coordinator, c.Functions, c.Types, worker.Options{Observer: c.observer})
		if err := w.Connect(ctx, "local", "local", fmt.Sprintf("worker-%d", i)); err != nil {
			cancel()
			disconnectAll(workers)
			return fmt.Errorf("connecting worker %d: %w", i, err)
		}
		if err := announceFunctions(ctx, w); err != nil {
			cancel()
			disconnectAll(append(workers, w))
			return fmt.Errorf("announcing functions to worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}

	c.cancel = cancel
	c.workers = workers
	c.running = true

	c.wg.Add(len(workers))
	for _, w := range workers {
		go func(w *Worker) {
			defer c.wg.Done()

			for {
				err := w.MainLoop(ctx)
				if err == nil {
					// Cancelled context; clean shutdown.
					return
				}
				if errors.Is(err, ErrNotConnected) {
					log.Printf("orchard: cluster worker lost its session: %v", err)
					return
				}
				// A failed task leaves the loop restartable. Log and keep
				// serving so one bad task doesn't kill the worker.
				log.Printf("orchard: cluster worker error: %v", err)
			}
		}(w)
	}

	return nil
}

// announceFunctions re-registers every declaration in the shared registry
// under w's own session. Eligibility for a task is per worker, not per
// registry.
func announceFunctions(ctx context.Context, w *Worker) error {
	for _, name := range w.Functions().Names() {
		fn, _ := w.Functions().Get(name)
		if err := w.RegisterFunction(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}

func disconnectAll(workers []*Worker) {
	for _, w := range workers {
		_ = w.Disconnect(context.Background())
	}
}

// Stop cancels the worker goroutines started by StartWorkers, waits for
// them to exit, and disconnects their sessions. The Driver stays connected.
func (c *LocalCluster) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	workers := c.workers
	c.running = false
	c.cancel = nil
	c.workers = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	disconnectAll(workers)
}

// Close stops the worker pool, disconnects the Driver, and closes any
// backend resources the cluster opened itself, such as the database behind
// OpenCluster's sqlite backend. Databases and clients passed in by the
// caller stay open.
func (c *LocalCluster) Close(ctx context.Context) error {
	c.Stop()
	err := c.Driver.Disconnect(ctx)
	for _, cl := range c.closers {
		if cerr := cl.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Register declares fn through the Driver. Registration is part of the
// single-threaded setup phase, so it must happen before StartWorkers.
func (c *LocalCluster) Register(ctx context.Context, fn *Function) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		return errors.New("orchard: register functions before StartWorkers")
	}
	return c.Driver.RegisterFunction(ctx, fn)
}

// RegisterModule declares every function of m through the Driver, following
// the same setup-phase rule as Register.
func (c *LocalCluster) RegisterModule(ctx context.Context, m *Module) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		return errors.New("orchard: register functions before StartWorkers")
	}
	return c.Driver.RegisterModule(ctx, m)
}

// Call schedules functionID through the Driver and returns the single
// result ref.
func (c *LocalCluster) Call(ctx context.Context, functionID string, args ...any) (ObjectRef, error) {
	return c.Driver.Call(ctx, functionID, args...)
}

// CallN schedules functionID through the Driver and returns one ref per
// declared result.
func (c *LocalCluster) CallN(ctx context.Context, functionID string, args ...any) ([]ObjectRef, error) {
	return c.Driver.CallN(ctx, functionID, args...)
}

// Put stores v through the Driver and returns its ref.
func (c *LocalCluster) Put(ctx context.Context, v any) (ObjectRef, error) {
	return c.Driver.Put(ctx, v)
}

// Get blocks until the object behind ref is available and returns it.
func (c *LocalCluster) Get(ctx context.Context, ref ObjectRef) (any, error) {
	return c.Driver.Get(ctx, ref)
}

// Info reports the coordinator's view of the cluster.
func (c *LocalCluster) Info(ctx context.Context) (SchedulerInfo, error) {
	return c.Coordinator.SchedulerInfo(ctx, c.Driver.Handle())
}
