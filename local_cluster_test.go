package orchard

import (
	"context"
	"testing"
	"time"
)

// getWithin bounds a blocking Get so a broken pool fails the test instead
// of hanging it.
func getWithin(t *testing.T, c *LocalCluster, ref ObjectRef) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := c.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get(%d) failed: %v", ref, err)
	}
	return v
}

// TestLocalCluster_DriverAndPool verifies that the driver can move objects
// without any pool, and that a started pool executes scheduled calls.
func TestLocalCluster_DriverAndPool(t *testing.T) {
	ctx := context.Background()

	c := NewLocalCluster()
	defer c.Close(ctx)

	// --- Driver only: object plumbing needs no pool. ---

	ref, err := c.Put(ctx, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got := getWithin(t, c, ref)
	if v, ok := got.([]float64); !ok || len(v) != 3 || v[2] != 3 {
		t.Fatalf("unexpected Put/Get round trip: %T (%v)", got, got)
	}

	// --- Pool execution. ---

	if _, err := Declare("math.add").In(Int, Int).Out(Int).Do(addImpl).Register(ctx, c.Driver); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := c.StartWorkers(ctx, 2); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer c.Stop()

	sumRef, err := c.Call(ctx, "math.add", 2, 3)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if sum := getWithin(t, c, sumRef); sum != 5 {
		t.Fatalf("expected add(2, 3) == 5, got %v", sum)
	}

	// Chain through the ref; the pool resolves it before executing.
	chainRef, err := c.Call(ctx, "math.add", sumRef, 10)
	if err != nil {
		t.Fatalf("chained Call failed: %v", err)
	}
	if sum := getWithin(t, c, chainRef); sum != 15 {
		t.Fatalf("expected add(add(2, 3), 10) == 15, got %v", sum)
	}

	info, err := c.Info(ctx)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	// Driver plus two pool workers.
	if info.Workers != 3 {
		t.Fatalf("expected 3 connected sessions, got %d", info.Workers)
	}

	// Completion is reported after the results are readable, so poll.
	deadline := time.Now().Add(2 * time.Second)
	for info.TasksCompleted != 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		if info, err = c.Info(ctx); err != nil {
			t.Fatalf("Info failed: %v", err)
		}
	}
	if info.TasksCompleted != 2 {
		t.Fatalf("expected 2 completed tasks, got %d", info.TasksCompleted)
	}
}

// TestLocalCluster_StartWorkersTwice ensures that StartWorkers cannot be
// called twice without Stop in between.
func TestLocalCluster_StartWorkersTwice(t *testing.T) {
	ctx := context.Background()

	c := NewLocalCluster()
	defer c.Close(ctx)

	if err := c.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("first StartWorkers failed: %v", err)
	}
	defer c.Stop()

	if err := c.StartWorkers(ctx, 1); err == nil {
		t.Fatalf("expected error from second StartWorkers call, got nil")
	}
}

// TestLocalCluster_StopWithoutStart ensures Stop is safe when workers were
// never started.
func TestLocalCluster_StopWithoutStart(t *testing.T) {
	c := NewLocalCluster()
	// Should not panic or deadlock.
	c.Stop()
	c.Stop()
}

// TestLocalCluster_StopDisconnectsPool verifies that Stop tears down the
// pool sessions and leaves the driver connected, and that a second
// StartWorkers after Stop serves calls again.
func TestLocalCluster_StopDisconnectsPool(t *testing.T) {
	ctx := context.Background()

	c := NewLocalCluster()
	defer c.Close(ctx)

	if _, err := Declare("math.add").In(Int, Int).Out(Int).Do(addImpl).Register(ctx, c.Driver); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := c.StartWorkers(ctx, 2); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	c.Stop()

	info, err := c.Info(ctx)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Workers != 1 {
		t.Fatalf("expected only the driver session after Stop, got %d", info.Workers)
	}
	if !c.Driver.Connected() {
		t.Fatalf("expected the driver to stay connected after Stop")
	}

	if err := c.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer c.Stop()

	ref, err := c.Call(ctx, "math.add", 20, 22)
	if err != nil {
		t.Fatalf("Call after restart failed: %v", err)
	}
	if sum := getWithin(t, c, ref); sum != 42 {
		t.Fatalf("expected add(20, 22) == 42 after restart, got %v", sum)
	}
}

// TestLocalCluster_RegisterAfterStartFails pins the setup-phase rule:
// declarations happen before the pool runs.
func TestLocalCluster_RegisterAfterStartFails(t *testing.T) {
	ctx := context.Background()

	c := NewLocalCluster()
	defer c.Close(ctx)

	if err := c.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer c.Stop()

	fn, err := Declare("late.fn").In(Int).Out(Int).Do(func(ctx context.Context, args []any) ([]any, error) {
		return []any{args[0]}, nil
	}).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if err := c.Register(ctx, fn); err == nil {
		t.Fatalf("expected Register to fail while the pool is running")
	}

	m := NewModule("late")
	if _, err := m.Func("id", Fixed(Int), []TypeSpec{Int}, func(ctx context.Context, args []any) ([]any, error) {
		return []any{args[0]}, nil
	}); err != nil {
		t.Fatalf("module func failed: %v", err)
	}
	if err := c.RegisterModule(ctx, m); err == nil {
		t.Fatalf("expected RegisterModule to fail while the pool is running")
	}
}
