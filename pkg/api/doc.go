// Package api contains the core building blocks of the orchard task
// execution runtime. It provides the low-level primitives for declaring
// remote functions, describing serialized values and tasks, talking to a
// coordinator, and observing worker behavior.
//
// Most users interact with the higher-level orchard package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// runtime itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Object refs and serialized values
//   - Function declarations and signatures
//   - Tasks and the coordinator surface
//   - Observability
//
// These primitives are assembled by the higher-level builder API in the
// orchard package, but can also be used directly where fine-grained control
// is needed.
//
// # Object Refs and Serialized Values
//
// An ObjectRef is an opaque handle to a slot in the object store. Refs are
// allocated before the values behind them exist; reading through a ref
// blocks until some worker publishes the value. This future-like behavior is
// the only synchronization primitive in the system.
//
// Values cross the store boundary in one of two serialized forms: Columnar,
// a contiguous numeric layout for arrays, and Value, a closed tagged tree
// for everything else. Both forms are plain data that any wire codec can
// encode; the codec package owns the conversion between application values
// and these forms.
//
// # Function Declarations
//
// A Function pairs a global identifier and a Signature with an
// implementation. The signature declares positional parameter types (fixed
// or variadic, as an explicit constructor choice) and an ordered list of
// return types. Declaring a function yields both halves of a remote call:
// the calling side validates arguments against the signature before
// anything is scheduled, and the executing side validates what the
// implementation produced before anything is published.
//
// Functions are grouped into Modules for namespaced registration. All
// registration happens in a single-threaded setup phase before worker loops
// start; the registries are deliberately unsynchronized.
//
// # Tasks and the Coordinator
//
// A Task is the wire-level unit of work: a function identifier, positional
// arguments (small literals inline, everything else by ref), and the ordered
// return refs the coordinator allocated for the call.
//
// The Coordinator interface is the worker's entire view of the rest of the
// system. Everything a worker does besides running user code goes through
// it: connecting, registering functions, submitting calls, moving values in
// and out of the object store, aliasing refs, and fetching assigned tasks.
//
// # Observability
//
// The api package defines the Observer interface, which workers use to
// report call and task lifecycle events.
//
// Observers can be used to:
//
//   - Log call submission and task transitions
//   - Collect metrics (e.g. counts, latencies, error rates)
//   - Integrate with external monitoring systems
//
// The orchard package exposes ready-made implementations such as logging and
// basic in-memory metrics, along with helpers to combine multiple observers.
//
// # Usage
//
// Most applications should start from the orchard package, using the
// declaration builder and cluster constructors provided there. The api
// package is useful when you need lower-level access, custom composition, or
// when contributing changes to the core runtime.
//
// See the orchard package documentation and the examples directory for
// end-to-end usage.
package api
