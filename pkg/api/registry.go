package api

import (
	"fmt"
	"sort"
)

// FunctionRegistry maps function identifiers to their declarations. A
// registry is shared by every worker in a process, so a function is declared
// once and visible to all of them.
//
// Registration is part of the single-threaded setup phase: all Add calls
// must happen before any worker loop starts. The registry is deliberately
// unsynchronized; after setup it is only read.
type FunctionRegistry struct {
	fns map[string]*Function
}

// NewFunctionRegistry creates an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{fns: make(map[string]*Function)}
}

// Add records a function declaration. Re-registering a name is an error.
func (r *FunctionRegistry) Add(fn *Function) error {
	if fn == nil {
		return fmt.Errorf("cannot register a nil function")
	}
	if _, exists := r.fns[fn.Name()]; exists {
		return fmt.Errorf("function %s is already registered", fn.Name())
	}
	r.fns[fn.Name()] = fn
	return nil
}

// Get looks up a function by identifier.
func (r *FunctionRegistry) Get(name string) (*Function, bool) {
	fn, ok := r.fns[name]
	return fn, ok
}

// Names returns the registered identifiers in sorted order.
func (r *FunctionRegistry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions.
func (r *FunctionRegistry) Len() int { return len(r.fns) }
