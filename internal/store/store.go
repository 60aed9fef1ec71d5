// Package store holds the objects task arguments and results travel
// through. Refs are allocated by the store, written at most once, and read
// through blocking gets; blocking reads are the only synchronization
// primitive workers have.
package store

import (
	"context"
	"errors"

	"github.com/phautamaki/orchard/pkg/api"
)

var (
	// ErrRefAlreadyWritten is returned when a put or alias targets a ref
	// that already resolved to an object.
	ErrRefAlreadyWritten = errors.New("object ref already written")

	// ErrRefAlreadyAliased is returned when a put or alias targets a ref
	// that is already an alias.
	ErrRefAlreadyAliased = errors.New("object ref already aliased")

	// ErrUnknownRef is returned for refs the store never allocated.
	ErrUnknownRef = errors.New("object ref was never allocated")

	// ErrAliasCycle is returned when an alias would make a ref resolve,
	// directly or through a chain, to itself.
	ErrAliasCycle = errors.New("alias would form a cycle")

	// ErrWrongClass is returned when a raw read hits a structural object or
	// the other way around.
	ErrWrongClass = errors.New("object stored under the other class")
)

// Stats are the store's counters, surfaced through the coordinator's
// scheduler info.
type Stats struct {
	Allocated int // refs handed out
	Objects   int // refs resolved to an object, raw or structural
	Raw       int // resolved raw objects
	Aliases   int // refs forwarding to another ref
	Requested int // refs marked needed by RequestRef
}

// Store is a shared object store. Every ref moves through the same life
// cycle: allocated, then either written exactly once or aliased exactly
// once, never both. Reads block until the chain ends in a written object.
//
// Objects come in two classes. Raw objects are opaque byte payloads;
// structural objects are serialized Value trees plus the refs they contain.
// A reader has to ask IsRaw before choosing the read path.
type Store interface {
	// NewRef allocates a fresh ref. Refs are never reused.
	NewRef(ctx context.Context) (api.ObjectRef, error)

	// PutRaw writes an opaque payload under ref.
	PutRaw(ctx context.Context, ref api.ObjectRef, data []byte) error

	// GetRaw blocks until ref resolves to a raw object and returns its
	// payload.
	GetRaw(ctx context.Context, ref api.ObjectRef) ([]byte, error)

	// IsRaw blocks until ref resolves to an object of either class and
	// reports whether it is raw.
	IsRaw(ctx context.Context, ref api.ObjectRef) (bool, error)

	// PutValue writes a structural object under ref. contained lists the
	// refs serialized inside val, for the reference graph.
	PutValue(ctx context.Context, ref api.ObjectRef, val *api.Value, contained []api.ObjectRef) error

	// GetValue blocks until ref resolves to a structural object.
	GetValue(ctx context.Context, ref api.ObjectRef) (*api.Value, error)

	// Contained returns the refs recorded with a resolved structural
	// object. It does not block; an unresolved ref is an error.
	Contained(ctx context.Context, ref api.ObjectRef) ([]api.ObjectRef, error)

	// Alias makes alias resolve to whatever target resolves to, now or
	// later. The alias side must be unwritten and unaliased.
	Alias(ctx context.Context, alias, target api.ObjectRef) error

	// RequestRef marks ref as needed soon. Purely advisory; it feeds the
	// Requested counter and whatever delivery machinery the backend has.
	RequestRef(ctx context.Context, ref api.ObjectRef) error

	// Stats reports the store's counters.
	Stats(ctx context.Context) (Stats, error)
}

// maxAliasHops bounds alias-chain walks. Alias rejects cycles it can see,
// but two concurrent aliases on a shared backend can still close a loop, so
// every walk carries this guard instead of trusting the writer.
const maxAliasHops = 4096
