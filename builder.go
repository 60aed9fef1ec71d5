package orchard

import (
	"context"
	"fmt"
)

// FuncBuilder declares a remote function step by step:
//
//	add, err := orchard.Declare("math.add").
//	    In(orchard.Int, orchard.Int).
//	    Out(orchard.Int).
//	    Do(func(ctx context.Context, args []any) ([]any, error) {
//	        return []any{args[0].(int) + args[1].(int)}, nil
//	    }).
//	    Build()
//
// Build performs the same validation as NewFunction; the builder only
// collects the pieces. The zero FuncBuilder is not usable, start with
// Declare.
type FuncBuilder struct {
	name    string
	params  Params
	returns []TypeSpec
	impl    ImplFunc
}

// Declare starts a declaration for the given function name. Panics if the
// name is empty, since a fluent chain has no error channel.
func Declare(name string) *FuncBuilder {
	if name == "" {
		panic("orchard: function name must not be empty")
	}
	return &FuncBuilder{name: name, params: Fixed()}
}

// In declares an exact parameter list. Calling In() with no types declares a
// zero-argument function, which is also the default.
func (b *FuncBuilder) In(types ...TypeSpec) *FuncBuilder {
	b.params = Fixed(types...)
	return b
}

// InVariadic declares a parameter list whose last type absorbs any number of
// trailing arguments. InVariadic() accepts anything, including no arguments.
func (b *FuncBuilder) InVariadic(types ...TypeSpec) *FuncBuilder {
	b.params = Variadic(types...)
	return b
}

// Out declares the result types. At least one is required; a call's result
// is its return refs, so Build rejects a declaration without any.
func (b *FuncBuilder) Out(types ...TypeSpec) *FuncBuilder {
	b.returns = types
	return b
}

// Do sets the implementation. Panics on nil, since a fluent chain has no
// error channel.
func (b *FuncBuilder) Do(impl ImplFunc) *FuncBuilder {
	if impl == nil {
		panic("orchard: function implementation must not be nil")
	}
	b.impl = impl
	return b
}

// Build assembles and validates the declaration.
func (b *FuncBuilder) Build() (*Function, error) {
	return NewFunction(b.name, b.params, b.returns, b.impl)
}

// MustBuild is Build, panicking on error. Meant for package-level
// declarations where the error path is a programming mistake.
func (b *FuncBuilder) MustBuild() *Function {
	fn, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("orchard: %v", err))
	}
	return fn
}

// Register builds the declaration and registers it with the worker in one
// step, returning the built function.
func (b *FuncBuilder) Register(ctx context.Context, w *Worker) (*Function, error) {
	fn, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := w.RegisterFunction(ctx, fn); err != nil {
		return nil, err
	}
	return fn, nil
}

// MustRegister is Register, panicking on error.
func (b *FuncBuilder) MustRegister(ctx context.Context, w *Worker) *Function {
	fn, err := b.Register(ctx, w)
	if err != nil {
		panic(fmt.Sprintf("orchard: %v", err))
	}
	return fn
}
