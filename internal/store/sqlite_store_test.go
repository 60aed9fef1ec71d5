package store

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/phautamaki/orchard/internal/wire"
	"github.com/phautamaki/orchard/pkg/api"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	// Each :memory: connection is its own database; keep the pool at one
	// connection so readers and writers share state.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewSQLiteStore(db, wire.CBOR())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}

func TestSQLiteStore_RawRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ref := mustNewRef(t, s)
	if err := s.PutRaw(ctx, ref, []byte("payload")); err != nil {
		t.Fatalf("PutRaw failed: %v", err)
	}

	raw, err := s.IsRaw(ctx, ref)
	if err != nil {
		t.Fatalf("IsRaw failed: %v", err)
	}
	if !raw {
		t.Fatalf("expected a raw object")
	}

	data, err := s.GetRaw(ctx, ref)
	if err != nil {
		t.Fatalf("GetRaw failed: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("expected payload back, got %q", data)
	}
}

func TestSQLiteStore_ValueRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ref := mustNewRef(t, s)
	val := &api.Value{Kind: api.KindList, List: []*api.Value{
		{Kind: api.KindInt, Int: -5, Bits: 16},
		{Kind: api.KindString, Str: "x"},
		{Kind: api.KindRef, Ref: 7},
	}}
	contained := []api.ObjectRef{7}

	if err := s.PutValue(ctx, ref, val, contained); err != nil {
		t.Fatalf("PutValue failed: %v", err)
	}

	got, err := s.GetValue(ctx, ref)
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if !reflect.DeepEqual(got, val) {
		t.Fatalf("expected %+v back, got %+v", val, got)
	}

	gotContained, err := s.Contained(ctx, ref)
	if err != nil {
		t.Fatalf("Contained failed: %v", err)
	}
	if !reflect.DeepEqual(gotContained, contained) {
		t.Fatalf("expected contained %v, got %v", contained, gotContained)
	}
}

func TestSQLiteStore_WriteOnce(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ref := mustNewRef(t, s)
	if err := s.PutRaw(ctx, ref, []byte("a")); err != nil {
		t.Fatalf("PutRaw failed: %v", err)
	}

	if err := s.PutRaw(ctx, ref, []byte("b")); !errors.Is(err, ErrRefAlreadyWritten) {
		t.Fatalf("expected ErrRefAlreadyWritten, got %v", err)
	}
	if err := s.PutValue(ctx, ref, sampleValue(), nil); !errors.Is(err, ErrRefAlreadyWritten) {
		t.Fatalf("expected ErrRefAlreadyWritten, got %v", err)
	}

	target := mustNewRef(t, s)
	if err := s.Alias(ctx, ref, target); !errors.Is(err, ErrRefAlreadyWritten) {
		t.Fatalf("expected aliasing a written ref to fail, got %v", err)
	}
}

func TestSQLiteStore_AliasOnce(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	alias := mustNewRef(t, s)
	target := mustNewRef(t, s)
	other := mustNewRef(t, s)

	if err := s.Alias(ctx, alias, target); err != nil {
		t.Fatalf("Alias failed: %v", err)
	}

	if err := s.Alias(ctx, alias, other); !errors.Is(err, ErrRefAlreadyAliased) {
		t.Fatalf("expected ErrRefAlreadyAliased, got %v", err)
	}
	if err := s.PutRaw(ctx, alias, []byte("x")); !errors.Is(err, ErrRefAlreadyAliased) {
		t.Fatalf("expected writing an aliased ref to fail, got %v", err)
	}
}

func TestSQLiteStore_UnknownRef(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.PutRaw(ctx, api.ObjectRef(99), []byte("x")); !errors.Is(err, ErrUnknownRef) {
		t.Fatalf("expected ErrUnknownRef, got %v", err)
	}
	if _, err := s.GetRaw(ctx, api.ObjectRef(99)); !errors.Is(err, ErrUnknownRef) {
		t.Fatalf("expected ErrUnknownRef, got %v", err)
	}
}

func TestSQLiteStore_GetBlocksUntilPut(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ref := mustNewRef(t, s)

	done := make(chan getResult, 1)
	go func() {
		data, err := s.GetRaw(ctx, ref)
		done <- getResult{data: data, err: err}
	}()

	time.Sleep(50 * time.Millisecond)
	if err := s.PutRaw(ctx, ref, []byte("late")); err != nil {
		t.Fatalf("PutRaw failed: %v", err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("GetRaw failed: %v", res.err)
		}
		if string(res.data) != "late" {
			t.Fatalf("expected late payload, got %q", res.data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("GetRaw did not return after the write")
	}
}

func TestSQLiteStore_GetHonorsContextCancellation(t *testing.T) {
	s := newTestSQLiteStore(t)

	ref := mustNewRef(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := s.GetRaw(ctx, ref); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestSQLiteStore_AliasChainAndCycles(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := mustNewRef(t, s)
	b := mustNewRef(t, s)
	c := mustNewRef(t, s)

	if err := s.Alias(ctx, a, b); err != nil {
		t.Fatalf("Alias a->b failed: %v", err)
	}
	if err := s.Alias(ctx, b, c); err != nil {
		t.Fatalf("Alias b->c failed: %v", err)
	}

	if err := s.Alias(ctx, c, a); !errors.Is(err, ErrAliasCycle) {
		t.Fatalf("expected cycle to be rejected, got %v", err)
	}

	if err := s.PutRaw(ctx, c, []byte("end")); err != nil {
		t.Fatalf("PutRaw failed: %v", err)
	}
	data, err := s.GetRaw(ctx, a)
	if err != nil {
		t.Fatalf("GetRaw through chain failed: %v", err)
	}
	if string(data) != "end" {
		t.Fatalf("expected end, got %q", data)
	}
}

func TestSQLiteStore_WrongClass(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rawRef := mustNewRef(t, s)
	if err := s.PutRaw(ctx, rawRef, []byte("x")); err != nil {
		t.Fatalf("PutRaw failed: %v", err)
	}
	if _, err := s.GetValue(ctx, rawRef); !errors.Is(err, ErrWrongClass) {
		t.Fatalf("expected ErrWrongClass, got %v", err)
	}
	if _, err := s.Contained(ctx, rawRef); !errors.Is(err, ErrWrongClass) {
		t.Fatalf("expected ErrWrongClass, got %v", err)
	}
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rawRef := mustNewRef(t, s)
	valRef := mustNewRef(t, s)
	aliasRef := mustNewRef(t, s)
	pendingRef := mustNewRef(t, s)

	if err := s.PutRaw(ctx, rawRef, []byte("x")); err != nil {
		t.Fatalf("PutRaw failed: %v", err)
	}
	if err := s.PutValue(ctx, valRef, sampleValue(), nil); err != nil {
		t.Fatalf("PutValue failed: %v", err)
	}
	if err := s.Alias(ctx, aliasRef, rawRef); err != nil {
		t.Fatalf("Alias failed: %v", err)
	}
	if err := s.RequestRef(ctx, pendingRef); err != nil {
		t.Fatalf("RequestRef failed: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := Stats{Allocated: 4, Objects: 2, Raw: 1, Aliases: 1, Requested: 1}
	if st != want {
		t.Fatalf("expected stats %+v, got %+v", want, st)
	}
}
