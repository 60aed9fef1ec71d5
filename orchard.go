// Package orchard is the public face of the module. It re-exports the types
// and constructors that most programs need, so that a driver or a worker
// process can usually get by with a single import. See doc.go for the long
// form introduction.
package orchard

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gonum.org/v1/gonum/mat"

	"github.com/phautamaki/orchard/internal/cluster"
	"github.com/phautamaki/orchard/pkg/api"
	"github.com/phautamaki/orchard/pkg/codec"
	"github.com/phautamaki/orchard/pkg/tensor"
	"github.com/phautamaki/orchard/pkg/worker"
)

// Core data plane types.
type (
	ObjectRef = api.ObjectRef
	Handle    = api.Handle
	Value     = api.Value
	Columnar  = api.Columnar
	Task      = api.Task
	TaskArg   = api.TaskArg
)

// Declaration and registration types.
type (
	TypeSpec         = api.TypeSpec
	Params           = api.Params
	Signature        = api.Signature
	ImplFunc         = api.ImplFunc
	Function         = api.Function
	Module           = api.Module
	FunctionRegistry = api.FunctionRegistry
	TypeRegistry     = codec.TypeRegistry
	RegisterOptions  = codec.Options
)

// Cluster-facing types.
type (
	Coordinator   = api.Coordinator
	SchedulerInfo = api.SchedulerInfo
	TaskEvent     = api.TaskEvent
	EventLog      = api.EventLog
	Worker        = worker.Worker
)

// Observer types.
type (
	Observer             = api.Observer
	NoopObserver         = api.NoopObserver
	CompositeObserver    = api.CompositeObserver
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
)

// Sparse matrix types.
type (
	CSR = tensor.CSR
	COO = tensor.COO
)

// NilRef is the zero ObjectRef. No stored object is ever assigned it.
const NilRef = api.NilRef

// Sentinel errors, re-exported for errors.Is at the call site.
var (
	ErrArity              = api.ErrArity
	ErrArgumentType       = api.ErrArgumentType
	ErrReturnArity        = api.ErrReturnArity
	ErrReturnType         = api.ErrReturnType
	ErrNotConnected       = api.ErrNotConnected
	ErrUnserializableType = api.ErrUnserializableType
	ErrUnregisteredType   = api.ErrUnregisteredType
)

// Shorthand specs for the common declaration cases. Any matches every value,
// including nil.
var (
	Bool    = api.TypeOf[bool]()
	Int     = api.TypeOf[int]()
	Int64   = api.TypeOf[int64]()
	Float64 = api.TypeOf[float64]()
	String  = api.TypeOf[string]()
	Bytes   = api.TypeOf[[]byte]()
	Ints    = api.TypeOf[[]int]()
	Floats  = api.TypeOf[[]float64]()
	Strings = api.TypeOf[[]string]()
	Matrix  = api.TypeOf[*mat.Dense]()
	Ref     = api.TypeOf[api.ObjectRef]()
	Any     = api.AnySpec()
)

// TypeOf builds the TypeSpec for T. Use it for types without a shorthand
// above, for example TypeOf[*myproject.Model]().
func TypeOf[T any]() TypeSpec { return api.TypeOf[T]() }

// Fixed declares an exact parameter list.
func Fixed(types ...TypeSpec) Params { return api.Fixed(types...) }

// Variadic declares a parameter list whose last type absorbs any number of
// trailing arguments. Variadic() accepts anything.
func Variadic(types ...TypeSpec) Params { return api.Variadic(types...) }

// NewFunction declares a remote function. Most callers use Declare instead.
func NewFunction(name string, params Params, returns []TypeSpec, impl ImplFunc) (*Function, error) {
	return api.NewFunction(name, params, returns, impl)
}

// NewModule groups function declarations under a shared name prefix.
func NewModule(name string) *Module { return api.NewModule(name) }

// NewFunctionRegistry creates an empty function registry.
func NewFunctionRegistry() *FunctionRegistry { return api.NewFunctionRegistry() }

// NewTypeRegistry creates a type registry with the built-in matrix
// registrations already installed.
func NewTypeRegistry() *TypeRegistry { return codec.NewTypeRegistry() }

// NewCSR builds a compressed sparse row matrix.
func NewCSR(rows, cols int, data []float64, colIdx, rowPtr []int) (*CSR, error) {
	return tensor.NewCSR(rows, cols, data, colIdx, rowPtr)
}

// NewCOO builds a coordinate-format sparse matrix.
func NewCOO(rows, cols int, rowIdx, colIdx []int, data []float64) (*COO, error) {
	return tensor.NewCOO(rows, cols, rowIdx, colIdx, data)
}

// NewLoggingObserver returns an observer that logs task lifecycle events
// through logger. A nil logger falls back to slog.Default().
func NewLoggingObserver(logger *slog.Logger) Observer { return api.NewLoggingObserver(logger) }

// NewCompositeObserver fans events out to every given observer in order.
func NewCompositeObserver(obs ...Observer) Observer { return api.NewCompositeObserver(obs...) }

// NewInMemoryCoordinator returns a coordinator backed by process-local
// memory. Tasks, objects, and aliases all live on the heap and vanish with
// the process.
func NewInMemoryCoordinator() Coordinator { return cluster.NewInMemoryCoordinator() }

// NewSQLiteCoordinator returns a coordinator whose object store, task queue,
// and event log live in the given SQLite database. The schema is created on
// first use.
func NewSQLiteCoordinator(db *sql.DB) (Coordinator, error) {
	return cluster.NewSQLiteCoordinator(db)
}

// NewRedisCoordinator returns a coordinator whose object store and task
// queue live in Redis under the given key prefix. Workers in separate
// processes that share the client configuration see the same cluster.
func NewRedisCoordinator(client *redis.Client, prefix string) Coordinator {
	return cluster.NewRedisCoordinator(client, prefix)
}

// NewWorker creates a worker attached to coord. Nil registries are replaced
// with fresh ones; pass shared registries when several workers in one
// process should see the same declarations.
func NewWorker(coord Coordinator, functions *FunctionRegistry, types *TypeRegistry) *Worker {
	return worker.New(coord, functions, types)
}

// NewWorkerWithObserver is NewWorker with a task lifecycle observer wired in.
func NewWorkerWithObserver(coord Coordinator, functions *FunctionRegistry, types *TypeRegistry, obs Observer) *Worker {
	return worker.NewWithOptions(coord, functions, types, worker.Options{Observer: obs})
}

// Convenience wrappers that forward to a connected worker, so that short
// driver programs read top-down.

// Call schedules functionID with args and returns the single result ref.
func Call(ctx context.Context, w *Worker, functionID string, args ...any) (ObjectRef, error) {
	return w.Call(ctx, functionID, args...)
}

// CallN schedules functionID with args and returns one ref per declared
// result.
func CallN(ctx context.Context, w *Worker, functionID string, args ...any) ([]ObjectRef, error) {
	return w.CallN(ctx, functionID, args...)
}

// Put stores v in the object store and returns its ref.
func Put(ctx context.Context, w *Worker, v any) (ObjectRef, error) {
	return w.Put(ctx, v)
}

// Get blocks until the object behind ref is available and returns it.
func Get(ctx context.Context, w *Worker, ref ObjectRef) (any, error) {
	return w.Get(ctx, ref)
}
