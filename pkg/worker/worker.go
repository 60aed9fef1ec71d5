package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/phautamaki/orchard/internal/wire"
	"github.com/phautamaki/orchard/pkg/api"
	"github.com/phautamaki/orchard/pkg/codec"
	"github.com/phautamaki/orchard/pkg/tensor"
)

// Worker is one participant of a cluster: it submits remote calls, moves
// values in and out of the object store, and (unless it is a pure driver)
// executes assigned tasks in its main loop.
//
// A worker is not safe for concurrent use. Connect and all registration
// happens during the single-threaded setup phase; after the loop starts,
// the registries are read-only and the loop is the only goroutine touching
// the worker.
type Worker struct {
	coord     api.Coordinator
	functions *api.FunctionRegistry
	codec     *codec.Codec
	wire      wire.Codec
	observer  api.Observer

	handle  api.Handle
	machine *stateMachine
}

// Options tunes a worker beyond its required collaborators.
type Options struct {
	// Observer receives call and task lifecycle events. Defaults to
	// NoopObserver.
	Observer api.Observer

	// Wire is the byte codec for tasks and raw payloads. Every worker of a
	// cluster must use the cluster's format. Defaults to CBOR.
	Wire wire.Codec
}

// New creates a worker talking to coord. The registries are shared: every
// worker of an in-process cluster is handed the same ones, so a function or
// type declared once is visible to all of them. Nil registries get fresh
// empty ones.
func New(coord api.Coordinator, functions *api.FunctionRegistry, types *codec.TypeRegistry) *Worker {
	return NewWithOptions(coord, functions, types, Options{})
}

// NewWithOptions is New with explicit Options.
func NewWithOptions(coord api.Coordinator, functions *api.FunctionRegistry, types *codec.TypeRegistry, opts Options) *Worker {
	if functions == nil {
		functions = api.NewFunctionRegistry()
	}
	if types == nil {
		types = codec.NewTypeRegistry()
	}
	if opts.Observer == nil {
		opts.Observer = api.NoopObserver{}
	}
	if opts.Wire == nil {
		opts.Wire = wire.CBOR()
	}
	return &Worker{
		coord:     coord,
		functions: functions,
		codec:     codec.New(types),
		wire:      opts.Wire,
		observer:  opts.Observer,
		machine:   newStateMachine(),
	}
}

// Connect establishes this worker's session with the coordinator. The three
// addresses describe the scheduler, the object store and the worker itself;
// in-process coordinators treat them as labels.
func (w *Worker) Connect(ctx context.Context, schedulerAddr, storeAddr, workerAddr string) error {
	if w.Connected() {
		return fmt.Errorf("worker is already connected")
	}
	h, err := w.coord.Connect(ctx, schedulerAddr, storeAddr, workerAddr)
	if err != nil {
		return err
	}
	w.handle = h
	return nil
}

// Disconnect ends the session.
func (w *Worker) Disconnect(ctx context.Context) error {
	h, err := w.liveHandle("disconnect")
	if err != nil {
		return err
	}
	w.handle = ""
	return w.coord.Disconnect(ctx, h)
}

// Connected reports whether this worker holds a live session.
func (w *Worker) Connected() bool {
	return w.handle != "" && w.coord.IsConnected(w.handle)
}

// Handle exposes the session handle for diagnostics.
func (w *Worker) Handle() api.Handle { return w.handle }

// State reports the execution loop's current stage.
func (w *Worker) State() LoopState { return w.machine.current() }

// Functions exposes the shared function registry.
func (w *Worker) Functions() *api.FunctionRegistry { return w.functions }

// Types exposes the shared type registry, for registering application types
// during setup.
func (w *Worker) Types() *codec.TypeRegistry { return w.codec.Types() }

func (w *Worker) liveHandle(op string) (api.Handle, error) {
	if w.handle == "" || !w.coord.IsConnected(w.handle) {
		return "", &api.NotConnectedError{Op: op}
	}
	return w.handle, nil
}

// RegisterFunction announces fn to the coordinator and records it locally,
// making this worker eligible to execute it. Workers sharing a registry may
// each register the same declaration; re-registering the name with a
// different declaration is an error.
func (w *Worker) RegisterFunction(ctx context.Context, fn *api.Function) error {
	if fn == nil {
		return errors.New("cannot register a nil function")
	}
	h, err := w.liveHandle("registerFunction")
	if err != nil {
		return err
	}
	existing, known := w.functions.Get(fn.Name())
	if known && existing != fn {
		return fmt.Errorf("function %s is already declared differently", fn.Name())
	}
	if err := w.coord.RegisterFunction(ctx, h, fn.Name(), fn.ReturnArity()); err != nil {
		return err
	}
	if !known {
		return w.functions.Add(fn)
	}
	return nil
}

// RegisterModule registers every function the module declares.
func (w *Worker) RegisterModule(ctx context.Context, m *api.Module) error {
	if m == nil {
		return errors.New("cannot register a nil module")
	}
	for _, fn := range m.Functions() {
		if err := w.RegisterFunction(ctx, fn); err != nil {
			return err
		}
	}
	return nil
}

// Put publishes v to the object store under a freshly allocated ref and
// returns the ref. Any worker of the cluster can Get it.
func (w *Worker) Put(ctx context.Context, v any) (api.ObjectRef, error) {
	h, err := w.liveHandle("put")
	if err != nil {
		return api.NilRef, err
	}
	ref, err := w.coord.NewObjectRef(ctx, h)
	if err != nil {
		return api.NilRef, err
	}
	if err := w.publish(ctx, h, ref, v); err != nil {
		return api.NilRef, err
	}
	return ref, nil
}

// Get fetches the value behind ref, blocking until some task publishes it.
// A prefetch hint is sent first so a distributed store can start moving the
// value while the blocking read is set up.
func (w *Worker) Get(ctx context.Context, ref api.ObjectRef) (any, error) {
	h, err := w.liveHandle("get")
	if err != nil {
		return nil, err
	}
	if err := w.coord.RequestObject(ctx, h, ref); err != nil {
		return nil, err
	}
	return w.fetch(ctx, h, ref)
}

// publish writes v under ref: arrays go through the raw columnar path,
// everything else is serialized structurally with its contained refs.
func (w *Worker) publish(ctx context.Context, h api.Handle, ref api.ObjectRef, v any) error {
	if col, ok := tensor.ToColumnar(v); ok {
		for _, dim := range col.Shape {
			if dim < 1 {
				return errors.New("cannot put an empty matrix")
			}
		}
		return w.coord.PutRaw(ctx, h, ref, col)
	}
	val, contained, err := w.codec.Serialize(v)
	if err != nil {
		return err
	}
	return w.coord.PutObject(ctx, h, ref, val, contained)
}

// fetch reads the value behind ref, dispatching on the stored class. Both
// class check and read block until the ref resolves.
func (w *Worker) fetch(ctx context.Context, h api.Handle, ref api.ObjectRef) (any, error) {
	raw, err := w.coord.IsRaw(ctx, h, ref)
	if err != nil {
		return nil, err
	}
	if raw {
		col, err := w.coord.GetRaw(ctx, h, ref)
		if err != nil {
			return nil, err
		}
		return tensor.FromColumnar(col)
	}
	val, err := w.coord.GetObject(ctx, h, ref)
	if err != nil {
		return nil, err
	}
	return w.codec.Deserialize(val)
}
