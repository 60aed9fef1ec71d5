package orchard

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/phautamaki/orchard/internal/cluster"
	"github.com/phautamaki/orchard/internal/store"
	"github.com/phautamaki/orchard/internal/taskqueue"
	"github.com/phautamaki/orchard/internal/wire"
)

// Config selects and tunes a cluster backend. It is loaded from an optional
// YAML file plus ORCHARD_* environment variables; nested keys use
// underscores, so redis.addr becomes ORCHARD_REDIS_ADDR.
type Config struct {
	// Backend selects where objects and tasks live: memory, sqlite, or
	// redis.
	Backend string `mapstructure:"backend"`

	// Wire selects the task and object encoding: cbor or json.
	Wire string `mapstructure:"wire"`

	// Workers is the pool size a process should pass to StartWorkers.
	// OpenCluster does not start the pool itself.
	Workers int `mapstructure:"workers"`

	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	// Path is handed to sql.Open verbatim, so file DSNs with options such
	// as file:orchard.db?_journal=WAL work.
	Path string `mapstructure:"path"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig configures the coordinator's logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Backend: "memory",
		Wire:    "cbor",
		Workers: 2,
		SQLite:  SQLiteConfig{Path: "orchard.db"},
		Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "orchard"},
		Log:     LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "memory")
	v.SetDefault("wire", "cbor")
	v.SetDefault("workers", 2)
	v.SetDefault("sqlite.path", "orchard.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "orchard")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads configuration from the given file, falling back to an
// orchard.yaml in the working directory when path is empty. A missing
// fallback file is not an error; defaults and ORCHARD_* environment
// variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ORCHARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("orchard")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoadConfig is LoadConfig, panicking on error. Meant for main
// functions where a bad configuration should stop the process.
func MustLoadConfig(path string) *Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(fmt.Sprintf("orchard: %v", err))
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown backend %q (expected memory, sqlite, or redis)", c.Backend)
	}
	if _, err := wireByName(c.Wire); err != nil {
		return err
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Backend == "sqlite" && c.SQLite.Path == "" {
		return errors.New("sqlite backend needs sqlite.path")
	}
	if c.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("redis backend needs redis.addr")
	}
	return nil
}

// wireCodecs resolves configured format names. Both short names and full
// content types work, so wire: application/json is as valid as wire: json.
var wireCodecs = wire.NewRegistry()

func wireByName(name string) (wire.Codec, error) {
	if name == "" {
		name = "cbor"
	}
	return wireCodecs.ByName(strings.ToLower(name))
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", s)
	}
}

// OpenCluster builds a LocalCluster from cfg. A nil cfg means
// DefaultConfig. Resources opened here, like the sqlite database or the
// redis client, belong to the cluster and are released by Close.
func OpenCluster(cfg *Config) (*LocalCluster, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	wc, _ := wireByName(cfg.Wire)
	level, _ := parseLogLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	switch cfg.Backend {
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		if strings.Contains(cfg.SQLite.Path, ":memory:") {
			// Each new connection to :memory: would see its own empty
			// database.
			db.SetMaxOpenConns(1)
		}
		st, err := store.NewSQLiteStore(db, wc)
		if err != nil {
			db.Close()
			return nil, err
		}
		q, err := taskqueue.NewSQLiteQueue(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		events, err := cluster.NewSQLiteEventLog(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		coord := cluster.NewCoordinator(cluster.Config{
			Store:  st,
			Queue:  q,
			Events: events,
			Codec:  wc,
			Logger: logger,
		})
		c := newLocalCluster(coord, events, NoopObserver{})
		c.closers = append(c.closers, db)
		return c, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		events := cluster.NewMemoryEventLog()
		coord := cluster.NewCoordinator(cluster.Config{
			Store:  store.NewRedisStore(client, cfg.Redis.Prefix, wc),
			Queue:  taskqueue.NewRedisQueue(client, cfg.Redis.Prefix),
			Events: events,
			Codec:  wc,
			Logger: logger,
		})
		c := newLocalCluster(coord, events, NoopObserver{})
		c.closers = append(c.closers, client)
		return c, nil

	default: // memory, per validate
		events := cluster.NewMemoryEventLog()
		coord := cluster.NewCoordinator(cluster.Config{
			Store:  store.NewMemoryStore(),
			Queue:  taskqueue.NewInMemoryQueue(1024),
			Events: events,
			Codec:  wc,
			Logger: logger,
		})
		return newLocalCluster(coord, events, NoopObserver{}), nil
	}
}
