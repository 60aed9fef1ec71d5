package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for the error taxonomy. Every concrete error type in this
// file unwraps to exactly one of these, so callers can classify failures
// with errors.Is and pull out details with errors.As:
//
//	if errors.Is(err, api.ErrArity) { ... }
//
//	var ae *api.ArgumentTypeError
//	if errors.As(err, &ae) { ... ae.Pos ... }
var (
	// ErrUnserializableType: a type was offered for registration but does not
	// satisfy the requirements of any serialization strategy.
	ErrUnserializableType = errors.New("type cannot be registered for serialization")

	// ErrUnregisteredType: a value's type was never registered, so it cannot
	// be serialized or deserialized.
	ErrUnregisteredType = errors.New("type is not registered")

	// ErrArity: wrong number of arguments for a declared function.
	ErrArity = errors.New("argument count mismatch")

	// ErrArgumentType: an argument's type does not match the declaration.
	ErrArgumentType = errors.New("argument type mismatch")

	// ErrReturnArity: a function produced the wrong number of results.
	ErrReturnArity = errors.New("return count mismatch")

	// ErrReturnType: a result's type does not match the declaration.
	ErrReturnType = errors.New("return type mismatch")

	// ErrNotConnected: an operation that requires a live coordinator
	// connection was attempted without one.
	ErrNotConnected = errors.New("not connected to coordinator")
)

// UnserializableTypeError is returned at registration time when a type does
// not meet the preconditions of the chosen serialization strategy. It is
// never deferred to first use.
type UnserializableTypeError struct {
	TypeName string
	Reason   string
}

func (e *UnserializableTypeError) Error() string {
	return fmt.Sprintf("type %s cannot be registered: %s", e.TypeName, e.Reason)
}

func (e *UnserializableTypeError) Unwrap() error { return ErrUnserializableType }

// UnregisteredTypeError is returned when serialization or deserialization
// encounters a type (or type tag) that was never registered.
type UnregisteredTypeError struct {
	TypeName string
}

func (e *UnregisteredTypeError) Error() string {
	return fmt.Sprintf("type %s is not registered", e.TypeName)
}

func (e *UnregisteredTypeError) Unwrap() error { return ErrUnregisteredType }

// ArityError reports an argument count that does not match a function's
// declared parameters. For variadic declarations AtLeast is true and Want is
// the minimum count.
type ArityError struct {
	Function string
	Want     int
	Got      int
	AtLeast  bool
}

func (e *ArityError) Error() string {
	if e.AtLeast {
		return fmt.Sprintf("%s: takes at least %d argument(s), got %d", e.Function, e.Want, e.Got)
	}
	return fmt.Sprintf("%s: takes %d argument(s), got %d", e.Function, e.Want, e.Got)
}

func (e *ArityError) Unwrap() error { return ErrArity }

// ArgumentTypeError reports an argument whose type does not satisfy the
// declared parameter type. Pos is the 0-based argument position.
type ArgumentTypeError struct {
	Function string
	Pos      int
	Want     string
	Got      string
}

func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("%s: argument %d must be %s, got %s", e.Function, e.Pos, e.Want, e.Got)
}

func (e *ArgumentTypeError) Unwrap() error { return ErrArgumentType }

// ReturnArityError reports a function that produced a result count different
// from its declared return arity.
type ReturnArityError struct {
	Function string
	Want     int
	Got      int
}

func (e *ReturnArityError) Error() string {
	return fmt.Sprintf("%s: declared %d return value(s), produced %d", e.Function, e.Want, e.Got)
}

func (e *ReturnArityError) Unwrap() error { return ErrReturnArity }

// ReturnTypeError reports a result whose type neither satisfies the declared
// return type nor is an ObjectRef standing in for it.
type ReturnTypeError struct {
	Function string
	Pos      int
	Want     string
	Got      string
}

func (e *ReturnTypeError) Error() string {
	return fmt.Sprintf("%s: return value %d must be %s (or an ObjectRef), got %s", e.Function, e.Pos, e.Want, e.Got)
}

func (e *ReturnTypeError) Unwrap() error { return ErrReturnType }

// NotConnectedError is returned by worker operations that need a live
// coordinator session, including starting the main loop before Connect.
type NotConnectedError struct {
	Op string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: not connected to coordinator", e.Op)
}

func (e *NotConnectedError) Unwrap() error { return ErrNotConnected }
