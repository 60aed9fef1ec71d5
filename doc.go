// Package orchard provides an embeddable runtime for distributed task
// execution in Go.
//
// Orchard is designed for programs that want to fan computations out across
// worker processes without adopting heavy cluster infrastructure. A function
// is declared once, a call to it returns immediately with references to its
// future results, and any worker holding the declaration may execute it. It
// runs fully in Go, supports multiple storage backends, and integrates
// cleanly into existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Coordinator
//  2. Worker
//  3. ObjectRef
//  4. FuncBuilder
//  5. LocalCluster
//
// Together they form a complete task execution system with call-by-future
// semantics, shared object storage, and a clear mental model.
//
// # Coordinator
//
// The Coordinator is the scheduler and object store behind a cluster. It
// hands out sessions, matches queued tasks to eligible workers, stores
// objects under their refs, and resolves aliases between refs.
//
// Coordinators can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Redis (shared across processes)
//
// Each backend includes a matching task queue implementation so workers can
// reliably fetch work.
//
// # Worker
//
// Every process that talks to a cluster is a worker, whether it drives
// computations or executes them. A driving worker registers declarations,
// calls functions, and moves objects; an executing worker additionally runs
// the main loop, pulling one task at a time and publishing its results.
// The same Worker type does both jobs.
//
// # ObjectRef
//
// Calls do not return values, they return ObjectRefs. A ref names a slot in
// the object store that the executing worker will eventually fill. Refs can
// be passed as arguments to further calls before their objects exist; the
// runtime resolves them when the downstream task runs. Get blocks until the
// object behind a ref is available.
//
// Matrices get special treatment: dense gonum matrices and the CSR and COO
// sparse forms travel through a columnar format that any worker can read
// without the type registry.
//
// # FuncBuilder
//
// FuncBuilder provides the declarative API used to declare remote
// functions, including their signature:
//
//	orchard.Declare("math.add").
//	    In(orchard.Int, orchard.Int).
//	    Out(orchard.Int).
//	    Do(addImpl).
//	    MustRegister(ctx, w)
//
// Argument counts and literal argument types are checked at call time,
// before a task is scheduled; results are checked against the declaration
// when the executing worker publishes them. The Typed adapters lift
// strongly-typed Go functions into the declaration's calling convention.
//
// # LocalCluster
//
// LocalCluster bundles a coordinator, the shared registries, a connected
// driver worker, and a pool of executing workers into a single process. It
// is the most convenient way to run and debug task graphs during
// development, and with the SQLite or Redis backends it carries the same
// code to small production deployments. OpenCluster builds one from
// configuration, honoring ORCHARD_* environment variables.
//
// # Summary
//
// Orchard's goal is to give Go developers call-by-future task execution
// that feels like Go: easy to embed, easy to test, explicit about errors,
// and without operational overhead. Coordinators schedule tasks and store
// objects, Workers execute declared functions, ObjectRefs stand in for
// results, FuncBuilder declares signatures, and LocalCluster wires it all
// together in one process.
//
// For examples, see the /examples directory or the project README.
package orchard
