package orchard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.Equal(t, "memory", cfg.Backend)
	require.Equal(t, "cbor", cfg.Wire)
	require.Equal(t, 2, cfg.Workers)
	require.NoError(t, cfg.validate())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchard.yaml")
	yaml := "backend: sqlite\nworkers: 5\nsqlite:\n  path: from-file.db\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("ORCHARD_SQLITE_PATH", "from-env.db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Backend)
	require.Equal(t, 5, cfg.Workers)
	require.Equal(t, "from-env.db", cfg.SQLite.Path, "environment should override the file")
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr, "untouched keys keep their defaults")
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("ORCHARD_BACKEND", "redis")
	t.Setenv("ORCHARD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ORCHARD_REDIS_PREFIX", "jobs")
	t.Setenv("ORCHARD_WIRE", "json")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Backend)
	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, "jobs", cfg.Redis.Prefix)
	require.Equal(t, "json", cfg.Wire)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Setenv("ORCHARD_BACKEND", "etcd")
	_, err := LoadConfig("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown backend")
}

func TestLoadConfig_BadWire(t *testing.T) {
	t.Setenv("ORCHARD_WIRE", "xml")
	_, err := LoadConfig("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown wire format")
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err, "an explicitly named file must exist")
}

func TestOpenCluster_MemoryDefaults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := OpenCluster(nil)
	require.NoError(t, err)
	defer c.Close(ctx)

	Declare("math.add").In(Int, Int).Out(Int).Do(addImpl).MustRegister(ctx, c.Driver)
	require.NoError(t, c.StartWorkers(ctx, 1))
	defer c.Stop()

	ref, err := c.Call(ctx, "math.add", 2, 3)
	require.NoError(t, err)

	getCtx, getCancel := context.WithTimeout(ctx, 5*time.Second)
	defer getCancel()
	sum, err := c.Get(getCtx, ref)
	require.NoError(t, err)
	require.Equal(t, 5, sum)
}

func TestOpenCluster_SQLiteBackend(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.Backend = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "opened.db")

	c, err := OpenCluster(cfg)
	require.NoError(t, err)

	Declare("math.add").In(Int, Int).Out(Int).Do(addImpl).MustRegister(ctx, c.Driver)
	require.NoError(t, c.StartWorkers(ctx, 1))

	ref, err := c.Call(ctx, "math.add", 40, 2)
	require.NoError(t, err)

	getCtx, getCancel := context.WithTimeout(ctx, 5*time.Second)
	defer getCancel()
	sum, err := c.Get(getCtx, ref)
	require.NoError(t, err)
	require.Equal(t, 42, sum)

	c.Stop()
	require.NoError(t, c.Close(ctx), "Close owns the database it opened")

	_, err = os.Stat(cfg.SQLite.Path)
	require.NoError(t, err, "the database file should exist on disk")
}

func TestOpenCluster_JSONWire(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.Wire = "json"

	c, err := OpenCluster(cfg)
	require.NoError(t, err)
	defer c.Close(ctx)

	Declare("math.add").In(Int, Int).Out(Int).Do(addImpl).MustRegister(ctx, c.Driver)
	require.NoError(t, c.StartWorkers(ctx, 1))
	defer c.Stop()

	ref, err := c.Call(ctx, "math.add", 20, 22)
	require.NoError(t, err)

	getCtx, getCancel := context.WithTimeout(ctx, 5*time.Second)
	defer getCancel()
	sum, err := c.Get(getCtx, ref)
	require.NoError(t, err)
	require.Equal(t, 42, sum)
}

func TestOpenCluster_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Backend = "carrier-pigeon"
	_, err := OpenCluster(cfg)
	require.Error(t, err)
}
