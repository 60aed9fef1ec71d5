package taskqueue

import (
	"context"
)

// InMemoryQueue is a Queue backed by a buffered channel, for clusters whose
// workers share one process. It serves items strictly FIFO and ignores
// NotBefore: the coordinator holds back a worker that hands an item back, so
// serving the returned item early to the next worker costs nothing.
type InMemoryQueue struct {
	ch chan Item
}

// NewInMemoryQueue creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch: make(chan Item, capacity),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, it Item) error {
	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Item, error) {
	select {
	case it := <-q.ch:
		return &it, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.ch)
}
