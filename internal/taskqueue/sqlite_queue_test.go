package taskqueue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestSQLiteQueue(t *testing.T) *SQLiteQueue {
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

	q, err := NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("NewSQLiteQueue failed: %v", err)
	}
	return q
}

func TestSQLiteQueue_EnqueueDequeueFIFO(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	items := []Item{
		{TaskID: "1", FunctionID: "math.add", Payload: []byte("a")},
		{TaskID: "2", FunctionID: "math.add", Payload: []byte("b")},
		{TaskID: "3", FunctionID: "math.split", Payload: []byte("c")},
	}
	for _, it := range items {
		if err := q.Enqueue(ctx, it); err != nil {
			t.Fatalf("Enqueue %s failed: %v", it.TaskID, err)
		}
	}

	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	for _, want := range items {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.TaskID != want.TaskID || got.FunctionID != want.FunctionID {
			t.Fatalf("expected item %s/%s, got %s/%s", want.TaskID, want.FunctionID, got.TaskID, got.FunctionID)
		}
		if string(got.Payload) != string(want.Payload) {
			t.Fatalf("expected payload %q, got %q", want.Payload, got.Payload)
		}
		if got.EnqueuedAt.IsZero() {
			t.Fatalf("expected EnqueuedAt to be set")
		}
	}

	if q.Len() != 0 {
		t.Fatalf("expected Len 0 after dequeues, got %d", q.Len())
	}
}

func TestSQLiteQueue_DequeueHonorsContextCancellation(t *testing.T) {
	q := newTestSQLiteQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatalf("expected Dequeue to fail due to context cancellation")
	}
}

func TestSQLiteQueue_DequeueUnblocksOnEnqueue(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	done := make(chan *Item, 1)
	go func() {
		it, err := q.Dequeue(ctx)
		if err != nil {
			done <- nil
			return
		}
		done <- it
	}()

	time.Sleep(50 * time.Millisecond)
	if err := q.Enqueue(ctx, Item{TaskID: "late", FunctionID: "f"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case it := <-done:
		if it == nil || it.TaskID != "late" {
			t.Fatalf("unexpected item: %+v", it)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Dequeue did not return after Enqueue")
	}
}

// An item put back with NotBefore in the future must not be handed out
// before that time, and items behind it stay available.
func TestSQLiteQueue_NotBeforeDelaysDelivery(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	delayed := Item{
		TaskID:     "delayed",
		FunctionID: "f",
		NotBefore:  time.Now().Add(80 * time.Millisecond),
	}
	ready := Item{TaskID: "ready", FunctionID: "f"}

	if err := q.Enqueue(ctx, delayed); err != nil {
		t.Fatalf("Enqueue delayed failed: %v", err)
	}
	if err := q.Enqueue(ctx, ready); err != nil {
		t.Fatalf("Enqueue ready failed: %v", err)
	}

	got1, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 1 failed: %v", err)
	}
	if got1.TaskID != "ready" {
		t.Fatalf("expected the ready item first, got %q", got1.TaskID)
	}

	got2, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 2 failed: %v", err)
	}
	if got2.TaskID != "delayed" {
		t.Fatalf("expected the delayed item, got %q", got2.TaskID)
	}
	if time.Now().Before(delayed.NotBefore) {
		t.Fatalf("delayed item was handed out before its NotBefore")
	}
}
