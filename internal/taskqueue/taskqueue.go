// Package taskqueue moves scheduled tasks from the remote calls that create
// them to the workers that execute them. The queue never looks inside a
// task; it carries the wire-encoded payload plus just enough routing
// metadata for the coordinator to hand tasks to eligible workers.
package taskqueue

import (
	"context"
	"time"
)

// Item is one scheduled task in flight.
type Item struct {
	// TaskID mirrors the encoded task's ID for logging and events.
	TaskID string

	// FunctionID routes the item: only workers that registered this
	// function may execute it.
	FunctionID string

	// Payload is the wire-encoded task, opaque to the queue.
	Payload []byte

	EnqueuedAt time.Time

	// NotBefore is the earliest time this item should be handed out
	// again. The coordinator sets it when it puts an item back because the
	// dequeuing worker could not run it. Zero means "immediately".
	NotBefore time.Time
}

// Queue is a FIFO task queue shared by every worker of a cluster.
type Queue interface {
	// Enqueue adds an item to the queue. It should respect ctx for
	// cancellation.
	Enqueue(ctx context.Context, it Item) error

	// Dequeue removes and returns the next eligible item, blocking until
	// one is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Item, error)

	// Len returns the approximate number of items queued.
	Len() int
}
