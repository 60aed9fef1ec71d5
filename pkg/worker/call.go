package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phautamaki/orchard/pkg/api"
)

// Arguments small enough to ride inside the task payload are inlined;
// anything larger or unbounded goes through the object store by ref.
const (
	maxInlineElements = 100
	maxInlineLen      = 100
	maxInlineBytes    = 1000
)

// Call schedules functionID with args and returns the single ref its result
// will appear under. It is the common case of CallN for one-result
// functions; calling a function with a different return arity is an error.
func (w *Worker) Call(ctx context.Context, functionID string, args ...any) (api.ObjectRef, error) {
	fn, ok := w.functions.Get(functionID)
	if ok && fn.ReturnArity() != 1 {
		return api.NilRef, fmt.Errorf("%s returns %d values; use CallN", functionID, fn.ReturnArity())
	}
	refs, err := w.CallN(ctx, functionID, args...)
	if err != nil {
		return api.NilRef, err
	}
	if len(refs) != 1 {
		return api.NilRef, fmt.Errorf("%s was scheduled with %d return refs, want 1", functionID, len(refs))
	}
	return refs[0], nil
}

// CallN schedules functionID with args and returns one ref per declared
// result. Arity and literal argument types are checked against the local
// declaration before anything reaches the scheduler, so a malformed call
// never becomes a task. Ref arguments are checked at execution time, once
// their values are known.
func (w *Worker) CallN(ctx context.Context, functionID string, args ...any) ([]api.ObjectRef, error) {
	h, err := w.liveHandle("call")
	if err != nil {
		return nil, err
	}
	fn, ok := w.functions.Get(functionID)
	if !ok {
		return nil, fmt.Errorf("function %s is not declared", functionID)
	}
	if err := fn.Signature().CheckArgs(functionID, args); err != nil {
		return nil, err
	}

	task := api.Task{
		ID:         uuid.New().String(),
		FunctionID: functionID,
		Args:       make([]api.TaskArg, len(args)),
	}
	for i, arg := range args {
		ta, err := w.buildArg(ctx, h, arg)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", functionID, i, err)
		}
		task.Args[i] = ta
	}

	payload, err := w.wire.Marshal(&task)
	if err != nil {
		return nil, err
	}
	refs, err := w.coord.RemoteCall(ctx, h, payload)
	if err != nil {
		return nil, err
	}
	w.observer.OnRemoteCall(ctx, functionID, refs)
	return refs, nil
}

// buildArg turns one call argument into its task form. Refs pass through,
// small plain values are inlined, and everything else is published to the
// object store first.
func (w *Worker) buildArg(ctx context.Context, h api.Handle, arg any) (api.TaskArg, error) {
	if ref, ok := arg.(api.ObjectRef); ok {
		return api.ByRef(ref), nil
	}
	if inlineable(arg) {
		val, contained, err := w.codec.Serialize(arg)
		if err != nil {
			return api.TaskArg{}, err
		}
		if len(contained) == 0 {
			encoded, err := w.wire.Marshal(val)
			if err != nil {
				return api.TaskArg{}, err
			}
			if len(encoded) <= maxInlineBytes {
				return api.ByValue(val), nil
			}
		}
		ref, err := w.coord.NewObjectRef(ctx, h)
		if err != nil {
			return api.TaskArg{}, err
		}
		if err := w.coord.PutObject(ctx, h, ref, val, contained); err != nil {
			return api.TaskArg{}, err
		}
		return api.ByRef(ref), nil
	}
	ref, err := w.coord.NewObjectRef(ctx, h)
	if err != nil {
		return api.TaskArg{}, err
	}
	if err := w.publish(ctx, h, ref, arg); err != nil {
		return api.TaskArg{}, err
	}
	return api.ByRef(ref), nil
}

// inlineable reports whether v is a plain value small enough to carry in
// the task itself. Arrays, registered structs and anything of unbounded
// size go by ref instead.
func inlineable(v any) bool {
	switch x := v.(type) {
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case string:
		return len(x) <= maxInlineLen
	case []byte:
		return len(x) <= maxInlineLen
	case []int:
		return len(x) <= maxInlineElements
	case []int32:
		return len(x) <= maxInlineElements
	case []int64:
		return len(x) <= maxInlineElements
	case []float32:
		return len(x) <= maxInlineElements
	case []float64:
		return len(x) <= maxInlineElements
	case []bool:
		return len(x) <= maxInlineElements
	case []string:
		if len(x) > maxInlineElements {
			return false
		}
		for _, s := range x {
			if len(s) > maxInlineLen {
				return false
			}
		}
		return true
	case []any:
		if len(x) > maxInlineElements {
			return false
		}
		for _, el := range x {
			if !inlineable(el) {
				return false
			}
		}
		return true
	case map[string]any:
		if len(x) > maxInlineElements {
			return false
		}
		for _, el := range x {
			if !inlineable(el) {
				return false
			}
		}
		return true
	case api.ObjectRef:
		return true
	default:
		return false
	}
}
