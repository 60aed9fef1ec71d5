package api

import (
	"context"
	"errors"
	"fmt"
)

// ImplFunc is the implementation behind a remote function. It always
// receives and returns plain slices: args are the resolved positional
// arguments, and the result slice must have exactly the declared return
// arity. The typed adapters in the root package lift ordinary Go functions
// into this shape.
type ImplFunc func(ctx context.Context, args []any) ([]any, error)

// Function pairs a remote function's declaration with its implementation.
//
// One Function value serves both sides of a call. The calling side uses the
// declaration to validate arguments before anything is scheduled
// (Worker.Call / Worker.CallN). The executing side runs Execute, which
// invokes the implementation and validates what it produced. Keeping the two
// halves on one value means they can never disagree about the signature.
type Function struct {
	name string
	sig  Signature
	impl ImplFunc
}

// NewFunction declares a remote function. The name is the global identifier
// workers and the scheduler use; namespaced names like "math.add" come from
// Module. At least one return type is required, since a call's result is its
// return refs.
func NewFunction(name string, params Params, returns []TypeSpec, impl ImplFunc) (*Function, error) {
	if name == "" {
		return nil, errors.New("function name must not be empty")
	}
	if impl == nil {
		return nil, fmt.Errorf("function %s has no implementation", name)
	}
	if len(returns) == 0 {
		return nil, fmt.Errorf("function %s declares no return values", name)
	}
	return &Function{
		name: name,
		sig:  Signature{Params: params, Returns: returns},
		impl: impl,
	}, nil
}

// Name returns the global function identifier.
func (f *Function) Name() string { return f.name }

// Signature returns the declared shape.
func (f *Function) Signature() Signature { return f.sig }

// ReturnArity returns the declared number of results.
func (f *Function) ReturnArity() int { return len(f.sig.Returns) }

// Execute runs the implementation against resolved arguments and validates
// the results: the count must match the declared arity and each element must
// match its declared type or be an ObjectRef standing in for one. This is
// the executor half of the declaration; the worker loop calls it after
// argument resolution.
func (f *Function) Execute(ctx context.Context, args []any) ([]any, error) {
	results, err := f.impl(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	if err := f.sig.CheckResults(f.name, results); err != nil {
		return nil, err
	}
	return results, nil
}

// Module groups function declarations under a namespace. Functions declared
// through a module get names of the form "<module>.<name>", and a worker can
// register the whole module at once. This is the explicit replacement for
// scanning a code namespace for remote functions: only what was declared is
// registered.
type Module struct {
	name string
	fns  []*Function
}

// NewModule creates an empty module with the given namespace name.
func NewModule(name string) *Module {
	return &Module{name: name}
}

// Name returns the namespace name.
func (m *Module) Name() string { return m.name }

// Func declares a function inside the module. The module name is prefixed to
// produce the global identifier.
func (m *Module) Func(name string, params Params, returns []TypeSpec, impl ImplFunc) (*Function, error) {
	fn, err := NewFunction(m.name+"."+name, params, returns, impl)
	if err != nil {
		return nil, err
	}
	m.fns = append(m.fns, fn)
	return fn, nil
}

// Functions returns the declared functions in declaration order.
func (m *Module) Functions() []*Function {
	out := make([]*Function, len(m.fns))
	copy(out, m.fns)
	return out
}
