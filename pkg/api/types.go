package api

import "reflect"

// TypeSpec names a declared parameter or return type.
//
// Specs are built with TypeOf and compared against runtime values, not
// against other specs: an interface spec matches any value implementing the
// interface, a concrete spec matches assignable values. The zero TypeSpec is
// the wildcard and matches everything.
type TypeSpec struct {
	rt reflect.Type
}

// TypeOf builds the TypeSpec for T. T may be an interface type.
func TypeOf[T any]() TypeSpec {
	return TypeSpec{rt: reflect.TypeOf((*T)(nil)).Elem()}
}

// AnySpec matches every value, including nil.
func AnySpec() TypeSpec { return TypeSpec{} }

func (t TypeSpec) String() string {
	if t.rt == nil {
		return "any"
	}
	return t.rt.String()
}

// Matches reports whether v satisfies the spec.
func (t TypeSpec) Matches(v any) bool {
	if t.rt == nil {
		return true
	}
	if v == nil {
		// Untyped nil is accepted only where the declared type can hold it.
		switch t.rt.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
			return true
		}
		return false
	}
	vt := reflect.TypeOf(v)
	if t.rt.Kind() == reflect.Interface {
		return vt.Implements(t.rt)
	}
	return vt.AssignableTo(t.rt)
}

// Params declares a function's positional parameters. The two shapes are
// explicit constructors rather than an in-band sentinel:
//
//	Fixed(a, b)     exactly two arguments, typed a then b
//	Variadic(a, b)  two or more arguments; extras must match b
//	Variadic()      any number of arguments, unconstrained
type Params struct {
	types    []TypeSpec
	variadic bool
}

// Fixed declares an exact positional parameter list.
func Fixed(types ...TypeSpec) Params {
	return Params{types: types}
}

// Variadic declares a parameter list where every listed type is required and
// the last listed type additionally covers any extra trailing arguments.
func Variadic(types ...TypeSpec) Params {
	return Params{types: types, variadic: true}
}

// IsVariadic reports whether the parameter list accepts extra arguments.
func (p Params) IsVariadic() bool { return p.variadic }

// MinArity is the smallest accepted argument count.
func (p Params) MinArity() int { return len(p.types) }

// At returns the declared type for argument position i, or false when a
// fixed list has no position i.
func (p Params) At(i int) (TypeSpec, bool) {
	if i < len(p.types) {
		return p.types[i], true
	}
	if !p.variadic {
		return TypeSpec{}, false
	}
	if len(p.types) == 0 {
		return AnySpec(), true
	}
	return p.types[len(p.types)-1], true
}

// Signature is a function's declared shape: its parameters and its ordered
// return types. Return arity is len(Returns).
type Signature struct {
	Params  Params
	Returns []TypeSpec
}

// CheckArgs validates an argument list against the declaration at call time.
// Arity failures and literal type mismatches are reported immediately;
// ObjectRef arguments are deferred, since the value behind a ref is unknown
// until the executing worker resolves it.
func (s Signature) CheckArgs(fn string, args []any) error {
	n := len(args)
	if s.Params.IsVariadic() {
		if n < s.Params.MinArity() {
			return &ArityError{Function: fn, Want: s.Params.MinArity(), Got: n, AtLeast: true}
		}
	} else if n != s.Params.MinArity() {
		return &ArityError{Function: fn, Want: s.Params.MinArity(), Got: n}
	}
	for i, a := range args {
		if _, ok := a.(ObjectRef); ok {
			continue
		}
		if err := s.CheckArg(fn, i, a); err != nil {
			return err
		}
	}
	return nil
}

// CheckArg validates a single argument value against position i. The worker
// loop calls this a second time after resolving ref arguments, so a value
// that arrived by ref is held to the same declaration as a literal.
func (s Signature) CheckArg(fn string, i int, v any) error {
	ts, ok := s.Params.At(i)
	if !ok {
		// Arity is checked up front; reaching here means a caller slipped
		// extra positions past a fixed declaration.
		return &ArityError{Function: fn, Want: s.Params.MinArity(), Got: i + 1}
	}
	if !ts.Matches(v) {
		return &ArgumentTypeError{Function: fn, Pos: i, Want: ts.String(), Got: typeName(v)}
	}
	return nil
}

// CheckResults validates what a function implementation produced: the count
// must equal the declared return arity, and each element must either match
// the declared type or be an ObjectRef standing in for a value of that type.
func (s Signature) CheckResults(fn string, results []any) error {
	if len(results) != len(s.Returns) {
		return &ReturnArityError{Function: fn, Want: len(s.Returns), Got: len(results)}
	}
	for i, r := range results {
		if _, ok := r.(ObjectRef); ok {
			continue
		}
		if !s.Returns[i].Matches(r) {
			return &ReturnTypeError{Function: fn, Pos: i, Want: s.Returns[i].String(), Got: typeName(r)}
		}
	}
	return nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
