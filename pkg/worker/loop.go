package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phautamaki/orchard/pkg/api"
)

// MainLoop serves tasks until ctx is cancelled. It blocks fetching the next
// assignment, runs it through the execution stages, and publishes its
// results before fetching again. One task is in flight at a time.
//
// Cancellation while waiting for work is a clean shutdown and returns nil.
// A failing task makes MainLoop return its error with every return ref of
// that task left unwritten; rescheduling is the coordinator's business, not
// this layer's.
func (w *Worker) MainLoop(ctx context.Context) error {
	h, err := w.liveHandle("enterMainLoop")
	if err != nil {
		return err
	}
	for {
		if err := w.machine.to(StateFetching); err != nil {
			return err
		}
		payload, err := w.coord.WaitForNextTask(ctx, h)
		if err != nil {
			if mErr := w.machine.to(StateIdle); mErr != nil {
				return mErr
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if mErr := w.machine.to(StateDisconnected); mErr != nil {
					return mErr
				}
				return nil
			}
			w.observer.OnTaskFailed(ctx, nil, err)
			return err
		}
		if err := w.processTask(ctx, h, payload); err != nil {
			return err
		}
	}
}

func (w *Worker) processTask(ctx context.Context, h api.Handle, payload []byte) error {
	if err := w.machine.to(StateDeserializing); err != nil {
		return err
	}
	var task api.Task
	if err := w.wire.Unmarshal(payload, &task); err != nil {
		return w.failTask(ctx, nil, fmt.Errorf("decoding task: %w", err))
	}
	w.observer.OnTaskReceived(ctx, &task)
	started := time.Now()

	fn, ok := w.functions.Get(task.FunctionID)
	if !ok {
		return w.failTask(ctx, &task, fmt.Errorf("task %s names undeclared function %s", task.ID, task.FunctionID))
	}
	if err := w.machine.to(StateResolving); err != nil {
		return err
	}
	args, err := w.resolveArgs(ctx, h, fn, &task)
	if err != nil {
		return w.failTask(ctx, &task, err)
	}
	if err := w.machine.to(StateExecuting); err != nil {
		return err
	}
	results, err := fn.Execute(ctx, args)
	if err != nil {
		return w.failTask(ctx, &task, err)
	}
	if err := w.machine.to(StatePublishing); err != nil {
		return err
	}
	if err := w.publishResults(ctx, h, &task, results); err != nil {
		return w.failTask(ctx, &task, err)
	}
	if err := w.coord.NotifyTaskCompleted(ctx, h); err != nil {
		return w.failTask(ctx, &task, err)
	}
	w.observer.OnTaskCompleted(ctx, &task, time.Since(started))
	return w.machine.to(StateIdle)
}

func (w *Worker) failTask(ctx context.Context, task *api.Task, err error) error {
	w.observer.OnTaskFailed(ctx, task, err)
	if mErr := w.machine.to(StateIdle); mErr != nil {
		return mErr
	}
	return err
}

// resolveArgs materializes the task's arguments. Prefetch hints go out for
// every ref argument first, then each ref is fetched, blocking until its
// producer publishes, in whatever order producers finish. Every resolved
// value is checked against the declared parameter type; the call site could
// not see past the ref, so this is where a type mismatch surfaces.
func (w *Worker) resolveArgs(ctx context.Context, h api.Handle, fn *api.Function, task *api.Task) ([]any, error) {
	for _, a := range task.Args {
		if a.IsRef() {
			if err := w.coord.RequestObject(ctx, h, a.Ref); err != nil {
				return nil, err
			}
		}
	}
	sig := fn.Signature()
	args := make([]any, len(task.Args))
	for i, a := range task.Args {
		var (
			v   any
			err error
		)
		if a.IsRef() {
			v, err = w.fetch(ctx, h, a.Ref)
		} else {
			v, err = w.codec.Deserialize(a.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		if err := sig.CheckArg(fn.Name(), i, v); err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// publishResults writes each result under its return ref. A result that is
// itself an ObjectRef aliases the return ref to it instead of copying, so
// readers resolve through to whatever that producer publishes.
// Completion is signalled by the caller only after every result landed.
func (w *Worker) publishResults(ctx context.Context, h api.Handle, task *api.Task, results []any) error {
	if len(results) != len(task.ReturnRefs) {
		return &api.ReturnArityError{Function: task.FunctionID, Want: len(task.ReturnRefs), Got: len(results)}
	}
	for i, out := range results {
		if ref, ok := out.(api.ObjectRef); ok {
			if err := w.coord.AliasRefs(ctx, h, task.ReturnRefs[i], ref); err != nil {
				return fmt.Errorf("aliasing result %d: %w", i, err)
			}
			continue
		}
		if err := w.publish(ctx, h, task.ReturnRefs[i], out); err != nil {
			return fmt.Errorf("publishing result %d: %w", i, err)
		}
	}
	return nil
}
