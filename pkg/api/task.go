package api

// TaskArg is one positional argument of a task. Exactly one of the two
// fields is set: small literals travel inside the task itself, everything
// else travels as a ref into the object store.
type TaskArg struct {
	Ref   ObjectRef `cbor:"r,omitempty" json:"r,omitempty"`
	Value *Value    `cbor:"v,omitempty" json:"v,omitempty"`
}

// ByRef wraps a ref argument.
func ByRef(r ObjectRef) TaskArg { return TaskArg{Ref: r} }

// ByValue wraps a literal argument.
func ByValue(v *Value) TaskArg { return TaskArg{Value: v} }

// IsRef reports whether the argument travels by reference.
func (a TaskArg) IsRef() bool { return a.Value == nil }

// Task is the unit of work a calling worker submits and an executing worker
// runs. It travels wire-encoded through the coordinator.
//
// ReturnRefs is empty when the caller submits the task; the coordinator
// allocates the refs during scheduling and hands the same list back to the
// caller as the call's result. The executing worker publishes result i under
// ReturnRefs[i].
type Task struct {
	ID         string      `cbor:"id" json:"id"`
	FunctionID string      `cbor:"fn" json:"fn"`
	Args       []TaskArg   `cbor:"args,omitempty" json:"args,omitempty"`
	ReturnRefs []ObjectRef `cbor:"rets,omitempty" json:"rets,omitempty"`
}
