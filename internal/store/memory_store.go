package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/phautamaki/orchard/pkg/api"
)

// object is a resolved store entry. Exactly one of data/val is meaningful,
// selected by raw.
type object struct {
	raw       bool
	data      []byte
	val       *api.Value
	contained []api.ObjectRef
}

type entry struct {
	obj       *object       // non-nil once written
	aliasTo   api.ObjectRef // non-zero once aliased
	requested bool
}

// MemoryStore is the in-process Store used by local clusters and tests.
// Blocked readers wait on a broadcast channel that every write and alias
// rotates, then re-walk their alias chain.
type MemoryStore struct {
	mu      sync.Mutex
	nextRef uint64
	entries map[api.ObjectRef]*entry
	wake    chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[api.ObjectRef]*entry),
		wake:    make(chan struct{}),
	}
}

func (s *MemoryStore) NewRef(ctx context.Context) (api.ObjectRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRef++
	ref := api.ObjectRef(s.nextRef)
	s.entries[ref] = &entry{}
	return ref, nil
}

func (s *MemoryStore) PutRaw(ctx context.Context, ref api.ObjectRef, data []byte) error {
	return s.put(ref, &object{raw: true, data: data})
}

func (s *MemoryStore) PutValue(ctx context.Context, ref api.ObjectRef, val *api.Value, contained []api.ObjectRef) error {
	if val == nil {
		return fmt.Errorf("storing %s: nil value", ref)
	}
	return s.put(ref, &object{val: val, contained: contained})
}

func (s *MemoryStore) put(ref api.ObjectRef, obj *object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[ref]
	if !ok {
		return fmt.Errorf("storing %s: %w", ref, ErrUnknownRef)
	}
	if e.obj != nil {
		return fmt.Errorf("storing %s: %w", ref, ErrRefAlreadyWritten)
	}
	if e.aliasTo != api.NilRef {
		return fmt.Errorf("storing %s: %w", ref, ErrRefAlreadyAliased)
	}

	e.obj = obj
	s.broadcastLocked()
	return nil
}

func (s *MemoryStore) GetRaw(ctx context.Context, ref api.ObjectRef) ([]byte, error) {
	obj, err := s.await(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !obj.raw {
		return nil, fmt.Errorf("reading %s raw: %w", ref, ErrWrongClass)
	}
	return obj.data, nil
}

func (s *MemoryStore) GetValue(ctx context.Context, ref api.ObjectRef) (*api.Value, error) {
	obj, err := s.await(ctx, ref)
	if err != nil {
		return nil, err
	}
	if obj.raw {
		return nil, fmt.Errorf("reading %s: %w", ref, ErrWrongClass)
	}
	return obj.val, nil
}

func (s *MemoryStore) IsRaw(ctx context.Context, ref api.ObjectRef) (bool, error) {
	obj, err := s.await(ctx, ref)
	if err != nil {
		return false, err
	}
	return obj.raw, nil
}

func (s *MemoryStore) Contained(ctx context.Context, ref api.ObjectRef) ([]api.ObjectRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.resolveLocked(ref)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("reading %s: not resolved", ref)
	}
	if obj.raw {
		return nil, fmt.Errorf("reading %s contained refs: %w", ref, ErrWrongClass)
	}
	return obj.contained, nil
}

func (s *MemoryStore) Alias(ctx context.Context, alias, target api.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ae, ok := s.entries[alias]
	if !ok {
		return fmt.Errorf("aliasing %s: %w", alias, ErrUnknownRef)
	}
	if ae.obj != nil {
		return fmt.Errorf("aliasing %s: %w", alias, ErrRefAlreadyWritten)
	}
	if ae.aliasTo != api.NilRef {
		return fmt.Errorf("aliasing %s: %w", alias, ErrRefAlreadyAliased)
	}
	if _, ok := s.entries[target]; !ok {
		return fmt.Errorf("aliasing %s to %s: %w", alias, target, ErrUnknownRef)
	}

	// Walk the target's chain; reaching the alias means the new edge would
	// close a loop.
	for r := target; ; {
		if r == alias {
			return fmt.Errorf("aliasing %s to %s: %w", alias, target, ErrAliasCycle)
		}
		e := s.entries[r]
		if e == nil || e.aliasTo == api.NilRef {
			break
		}
		r = e.aliasTo
	}

	ae.aliasTo = target
	s.broadcastLocked()
	return nil
}

func (s *MemoryStore) RequestRef(ctx context.Context, ref api.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[ref]
	if !ok {
		return fmt.Errorf("requesting %s: %w", ref, ErrUnknownRef)
	}
	e.requested = true
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Allocated: int(s.nextRef)}
	for _, e := range s.entries {
		switch {
		case e.obj != nil:
			st.Objects++
			if e.obj.raw {
				st.Raw++
			}
		case e.aliasTo != api.NilRef:
			st.Aliases++
		}
		if e.requested {
			st.Requested++
		}
	}
	return st, nil
}

// await blocks until ref's alias chain ends in a written object.
func (s *MemoryStore) await(ctx context.Context, ref api.ObjectRef) (*object, error) {
	for {
		s.mu.Lock()
		obj, err := s.resolveLocked(ref)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if obj != nil {
			s.mu.Unlock()
			return obj, nil
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// resolveLocked follows ref's alias chain. A nil object with nil error
// means the chain is intact but its end is not written yet.
func (s *MemoryStore) resolveLocked(ref api.ObjectRef) (*object, error) {
	for hops := 0; ; hops++ {
		if hops > maxAliasHops {
			return nil, fmt.Errorf("resolving %s: %w", ref, ErrAliasCycle)
		}
		e, ok := s.entries[ref]
		if !ok {
			return nil, fmt.Errorf("resolving %s: %w", ref, ErrUnknownRef)
		}
		if e.obj != nil {
			return e.obj, nil
		}
		if e.aliasTo == api.NilRef {
			return nil, nil
		}
		ref = e.aliasTo
	}
}

// broadcastLocked wakes every blocked reader so it can re-walk its chain.
func (s *MemoryStore) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}
