// Package worker implements the process that participates in an orchard
// cluster: it connects to a coordinator, registers callable functions,
// submits remote calls, moves values through the shared object store, and
// executes assigned tasks in its main loop.
//
// Every process is a worker. A driver that only submits calls and collects
// results is a worker that never enters the main loop; a compute process is
// the same worker running MainLoop. There is no separate client type.
//
// # Lifecycle
//
// A worker is built around three collaborators: a Coordinator for all
// cluster communication, a FunctionRegistry of callable declarations, and a
// TypeRegistry for structural serialization. Setup is single-threaded:
// construct, Connect, register functions and types, then either start
// calling or start serving. After that the registries are read-only.
//
//	w := worker.New(coord, functions, types)
//	if err := w.Connect(ctx, schedAddr, storeAddr, myAddr); err != nil { ... }
//	if err := w.RegisterModule(ctx, mod); err != nil { ... }
//	go w.MainLoop(ctx)
//
// # Calls and data
//
// Call and CallN schedule a registered function and immediately return
// refs for its future results; execution happens on whichever eligible
// worker fetches the task. Put publishes a value under a fresh ref, Get
// blocks until a ref resolves. Arguments to a call may be literals, refs,
// or values large enough that the worker silently routes them through the
// object store.
//
// # The main loop
//
// MainLoop is a single-task-at-a-time cycle driven by an explicit state
// machine: fetch, decode, resolve arguments, execute, publish results,
// repeat. Argument refs are resolved with prefetch hints and blocking
// reads, and each resolved value is re-checked against the declared
// parameter type. Results that are themselves refs become aliases of the
// task's return refs rather than copies. Cancelling the context while the
// loop waits for work shuts it down cleanly.
//
// Observers receive call and task lifecycle events and can log them,
// count them, or feed a monitoring system; see the api package.
package worker
