package orchard

import (
	"context"
	"fmt"
	"reflect"
)

// The Typed adapters lift strongly-typed Go functions into the []any
// calling convention of ImplFunc, so that implementations keep their natural
// signatures:
//
//	scale := orchard.Declare("linalg.scale").
//	    In(orchard.Matrix, orchard.Float64).
//	    Out(orchard.Matrix).
//	    Do(orchard.Typed2(func(ctx context.Context, m *mat.Dense, k float64) (*mat.Dense, error) {
//	        var out mat.Dense
//	        out.Scale(k, m)
//	        return &out, nil
//	    })).
//	    MustBuild()
//
// The runtime checks declared argument types before the implementation
// runs; the adapters add a second, concrete assertion so that a declaration
// out of step with its implementation fails with a readable error instead
// of a panic.

func argAs[T any](args []any, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, fmt.Errorf("missing argument %d", i)
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("argument %d is %T, not %s", i, args[i], reflect.TypeFor[T]())
	}
	return v, nil
}

// Typed1 adapts a one-argument, one-result function.
func Typed1[A, R any](fn func(context.Context, A) (R, error)) ImplFunc {
	return func(ctx context.Context, args []any) ([]any, error) {
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a)
		if err != nil {
			return nil, err
		}
		return []any{r}, nil
	}
}

// Typed2 adapts a two-argument, one-result function.
func Typed2[A, B, R any](fn func(context.Context, A, B) (R, error)) ImplFunc {
	return func(ctx context.Context, args []any) ([]any, error) {
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argAs[B](args, 1)
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a, b)
		if err != nil {
			return nil, err
		}
		return []any{r}, nil
	}
}

// Typed3 adapts a three-argument, one-result function.
func Typed3[A, B, C, R any](fn func(context.Context, A, B, C) (R, error)) ImplFunc {
	return func(ctx context.Context, args []any) ([]any, error) {
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argAs[B](args, 1)
		if err != nil {
			return nil, err
		}
		c, err := argAs[C](args, 2)
		if err != nil {
			return nil, err
		}
		r, err := fn(ctx, a, b, c)
		if err != nil {
			return nil, err
		}
		return []any{r}, nil
	}
}
