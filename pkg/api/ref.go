package api

import "fmt"

// ObjectRef is an opaque handle to a value in the object store.
//
// A ref names a slot that may not hold a value yet: refs are allocated by the
// coordinator before the task that produces them runs, so holding a ref never
// implies the value exists. Reading through a ref blocks until some worker
// publishes the value (or aliases the ref to another that has one).
//
// Refs are allocated only by the coordinator (Coordinator.NewObjectRef or as
// the return refs of Coordinator.RemoteCall). The zero value is not a valid
// ref and is used as the "no ref" sentinel in wire structures.
type ObjectRef uint64

// NilRef is the invalid zero ref.
const NilRef ObjectRef = 0

// Valid reports whether r names an allocated ref.
func (r ObjectRef) Valid() bool { return r != NilRef }

func (r ObjectRef) String() string {
	return fmt.Sprintf("ref:%d", uint64(r))
}
