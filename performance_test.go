package orchard

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestTaskOverheadUnder2ms verifies the non-functional requirement that the
// cluster overhead per task (excluding user logic) stays small.
//
// A chain of pass-through tasks, each consuming the previous task's ref, runs
// through a single pool worker. The final Get blocks until the whole chain
// has executed, so wall time divided by N is a fair per-task average covering
// scheduling, the queue hop, argument resolution, and publishing.
func TestTaskOverheadUnder2ms(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := NewLocalCluster()
	defer c.Close(ctx)

	// Pass-through impl to minimize user logic time.
	id := func(ctx context.Context, args []any) ([]any, error) { return []any{args[0]}, nil }
	Declare("perf.id").In(Int).Out(Int).Do(id).MustRegister(ctx, c.Driver)

	require.NoError(t, c.StartWorkers(ctx, 1))
	defer c.Stop()

	// Warm-up round trip to avoid measuring one-time costs.
	ref, err := c.Call(ctx, "perf.id", 0)
	require.NoError(t, err)
	_, err = c.Get(ctx, ref)
	require.NoError(t, err)

	const N = 400 // enough tasks for a stable average without taking long

	start := time.Now()
	ref, err = c.Call(ctx, "perf.id", 1)
	require.NoError(t, err)
	for i := 1; i < N; i++ {
		ref, err = c.Call(ctx, "perf.id", ref)
		require.NoError(t, err)
	}
	out, err := c.Get(ctx, ref)
	require.NoError(t, err)
	total := time.Since(start)

	require.Equal(t, 1, out)

	avgPerTask := total / N
	if avgPerTask >= 2*time.Millisecond {
		t.Fatalf("average cluster overhead per task too high: %v (total %v for %d tasks)", avgPerTask, total, N)
	}
}

// TestMinimalClusterFootprintUnder5MB verifies the non-functional requirement
// that an idle in-memory cluster is cheap enough to embed freely.
//
// We force a GC, capture HeapAlloc, create a cluster, force another GC and
// compare HeapAlloc again. This provides a conservative estimate of retained
// heap usage attributable to cluster initialization.
func TestMinimalClusterFootprintUnder5MB(t *testing.T) {
	// Serial on purpose: HeapAlloc is process-wide, and a concurrent test's
	// allocations would land in the measurement.

	runtime.GC()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	c := NewLocalCluster()
	// Keep c alive until after measurement.
	runtime.KeepAlive(c)

	runtime.GC()
	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	const fiveMB = 5 * 1024 * 1024
	used := int64(after.HeapAlloc) - int64(before.HeapAlloc)
	if used < 0 {
		used = 0 // be robust to minor fluctuations
	}

	if used >= fiveMB {
		t.Fatalf("minimal cluster footprint too high: %d bytes (>= %d)", used, fiveMB)
	}
}
