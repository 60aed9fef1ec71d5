package api

import (
	"errors"
	"testing"
)

//
// TypeSpec
//

func TestTypeSpec_MatchesConcrete(t *testing.T) {
	spec := TypeOf[int]()
	if !spec.Matches(42) {
		t.Fatalf("expected int spec to match 42")
	}
	if spec.Matches("nope") {
		t.Fatalf("expected int spec to reject a string")
	}
	if spec.Matches(nil) {
		t.Fatalf("expected int spec to reject nil")
	}
}

func TestTypeSpec_MatchesInterface(t *testing.T) {
	spec := TypeOf[error]()
	if !spec.Matches(errors.New("boom")) {
		t.Fatalf("expected error spec to match an error value")
	}
	if spec.Matches(42) {
		t.Fatalf("expected error spec to reject an int")
	}
}

func TestTypeSpec_NilAcceptedByNilableKinds(t *testing.T) {
	if !TypeOf[[]int]().Matches(nil) {
		t.Fatalf("expected slice spec to accept nil")
	}
	if !TypeOf[*Task]().Matches(nil) {
		t.Fatalf("expected pointer spec to accept nil")
	}
}

func TestAnySpec_MatchesEverything(t *testing.T) {
	spec := AnySpec()
	for _, v := range []any{nil, 1, "x", []float64{1}, ObjectRef(3)} {
		if !spec.Matches(v) {
			t.Fatalf("expected wildcard to match %v", v)
		}
	}
}

//
// Fixed signatures
//

func sigFixed() Signature {
	return Signature{
		Params:  Fixed(TypeOf[int](), TypeOf[string]()),
		Returns: []TypeSpec{TypeOf[int]()},
	}
}

func TestCheckArgs_FixedOK(t *testing.T) {
	if err := sigFixed().CheckArgs("f", []any{1, "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckArgs_FixedArityMismatch(t *testing.T) {
	err := sigFixed().CheckArgs("f", []any{1})
	if err == nil {
		t.Fatalf("expected an arity error")
	}
	if !errors.Is(err, ErrArity) {
		t.Fatalf("expected ErrArity, got %v", err)
	}
	var ae *ArityError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *ArityError, got %T", err)
	}
	if ae.Want != 2 || ae.Got != 1 || ae.AtLeast {
		t.Fatalf("unexpected details: %+v", ae)
	}
}

func TestCheckArgs_FixedTypeMismatch(t *testing.T) {
	err := sigFixed().CheckArgs("f", []any{1, 2})
	if !errors.Is(err, ErrArgumentType) {
		t.Fatalf("expected ErrArgumentType, got %v", err)
	}
	var ate *ArgumentTypeError
	if !errors.As(err, &ate) {
		t.Fatalf("expected *ArgumentTypeError, got %T", err)
	}
	if ate.Pos != 1 || ate.Want != "string" || ate.Got != "int" {
		t.Fatalf("unexpected details: %+v", ate)
	}
}

func TestCheckArgs_RefsAreDeferred(t *testing.T) {
	// A ref in any position passes the call-time check regardless of the
	// declared type; the executing worker re-checks the resolved value.
	if err := sigFixed().CheckArgs("f", []any{ObjectRef(1), ObjectRef(2)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

//
// Variadic signatures
//

func sigVariadic() Signature {
	return Signature{
		Params:  Variadic(TypeOf[int](), TypeOf[string]()),
		Returns: []TypeSpec{TypeOf[int]()},
	}
}

func TestCheckArgs_VariadicAcceptsExtras(t *testing.T) {
	sig := sigVariadic()
	for _, args := range [][]any{
		{1, "a"},
		{1, "a", "b"},
		{1, "a", "b", "c", "d"},
	} {
		if err := sig.CheckArgs("f", args); err != nil {
			t.Fatalf("expected %d args to be accepted: %v", len(args), err)
		}
	}
}

func TestCheckArgs_VariadicRequiresNamedTypes(t *testing.T) {
	err := sigVariadic().CheckArgs("f", []any{1})
	if !errors.Is(err, ErrArity) {
		t.Fatalf("expected ErrArity, got %v", err)
	}
	var ae *ArityError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *ArityError, got %T", err)
	}
	if !ae.AtLeast || ae.Want != 2 {
		t.Fatalf("unexpected details: %+v", ae)
	}
}

func TestCheckArgs_VariadicExtrasMatchLastType(t *testing.T) {
	err := sigVariadic().CheckArgs("f", []any{1, "a", 3})
	if !errors.Is(err, ErrArgumentType) {
		t.Fatalf("expected ErrArgumentType for extra int, got %v", err)
	}
	var ate *ArgumentTypeError
	if !errors.As(err, &ate) {
		t.Fatalf("expected *ArgumentTypeError, got %T", err)
	}
	if ate.Pos != 2 {
		t.Fatalf("expected position 2, got %d", ate.Pos)
	}
}

func TestCheckArgs_UnconstrainedVariadic(t *testing.T) {
	sig := Signature{Params: Variadic(), Returns: []TypeSpec{TypeOf[int]()}}
	if err := sig.CheckArgs("f", nil); err != nil {
		t.Fatalf("expected zero args to be accepted: %v", err)
	}
	if err := sig.CheckArgs("f", []any{1, "mixed", 2.5}); err != nil {
		t.Fatalf("expected mixed args to be accepted: %v", err)
	}
}

//
// Result validation
//

func TestCheckResults_OK(t *testing.T) {
	sig := Signature{Returns: []TypeSpec{TypeOf[int](), TypeOf[string]()}}
	if err := sig.CheckResults("f", []any{1, "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckResults_ArityMismatch(t *testing.T) {
	sig := Signature{Returns: []TypeSpec{TypeOf[int](), TypeOf[int]()}}
	err := sig.CheckResults("f", []any{1})
	if !errors.Is(err, ErrReturnArity) {
		t.Fatalf("expected ErrReturnArity, got %v", err)
	}
	var rae *ReturnArityError
	if !errors.As(err, &rae) {
		t.Fatalf("expected *ReturnArityError, got %T", err)
	}
	if rae.Want != 2 || rae.Got != 1 {
		t.Fatalf("unexpected details: %+v", rae)
	}
}

func TestCheckResults_TypeMismatch(t *testing.T) {
	sig := Signature{Returns: []TypeSpec{TypeOf[int]()}}
	err := sig.CheckResults("f", []any{"nope"})
	if !errors.Is(err, ErrReturnType) {
		t.Fatalf("expected ErrReturnType, got %v", err)
	}
}

func TestCheckResults_RefStandsInForValue(t *testing.T) {
	// A result may be an ObjectRef in place of a declared value; the
	// publishing stage aliases the return ref instead of writing.
	sig := Signature{Returns: []TypeSpec{TypeOf[int]()}}
	if err := sig.CheckResults("f", []any{ObjectRef(9)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
