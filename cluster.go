package orchard

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/phautamaki/orchard/internal/cluster"
	"github.com/phautamaki/orchard/internal/store"
	"github.com/phautamaki/orchard/internal/taskqueue"
	"github.com/phautamaki/orchard/internal/wire"
)

// NewSQLiteCluster builds a LocalCluster whose objects, tasks, and events
// live in the given SQLite database. Objects and queued tasks survive a
// process restart; function declarations do not, so re-register them on
// startup before StartWorkers.
//
// The caller owns db and closes it after Stop.
func NewSQLiteCluster(db *sql.DB) (*LocalCluster, error) {
	return NewSQLiteClusterWithObserver(db, NoopObserver{})
}

// NewSQLiteClusterWithObserver is NewSQLiteCluster with a task lifecycle
// observer attached to every pool worker.
func NewSQLiteClusterWithObserver(db *sql.DB, obs Observer) (*LocalCluster, error) {
	codec := wire.CBOR()

	st, err := store.NewSQLiteStore(db, codec)
	if err != nil {
		return nil, err
	}
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	events, err := cluster.NewSQLiteEventLog(db)
	if err != nil {
		return nil, err
	}

	coord := cluster.NewCoordinator(cluster.Config{
		Store:  st,
		Queue:  q,
		Events: events,
		Codec:  codec,
	})
	return newLocalCluster(coord, events, obs), nil
}

// NewRedisCluster builds a LocalCluster whose object store and task queue
// live in Redis under the given key prefix. Separate processes pointed at
// the same Redis and prefix share objects and tasks; the event log stays
// process-local.
func NewRedisCluster(client *redis.Client, prefix string) *LocalCluster {
	return NewRedisClusterWithObserver(client, prefix, NoopObserver{})
}

// NewRedisClusterWithObserver is NewRedisCluster with a task lifecycle
// observer attached to every pool worker.
func NewRedisClusterWithObserver(client *redis.Client, prefix string, obs Observer) *LocalCluster {
	codec := wire.CBOR()
	events := cluster.NewMemoryEventLog()

	coord := cluster.NewCoordinator(cluster.Config{
		Store:  store.NewRedisStore(client, prefix, codec),
		Queue:  taskqueue.NewRedisQueue(client, prefix),
		Events: events,
		Codec:  codec,
	})
	return newLocalCluster(coord, events, obs)
}
