package pollcache

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option mutates Config when constructing caches and the event bus.
type Option func(Config) Config

// WithCacheDuration overrides how long a fetched value stays fresh.
func WithCacheDuration(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.CacheDuration = d
		return cfg
	}
}

// WithMinUpdateInterval overrides the per-key fetch throttle.
func WithMinUpdateInterval(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.MinUpdateInterval = d
		return cfg
	}
}

// WithEventInterval overrides the EventBus trigger throttle.
func WithEventInterval(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.EventInterval = d
		return cfg
	}
}

// WithFetchTimeout bounds each backend fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.FetchTimeout = d
		return cfg
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(cfg Config) Config {
		cfg.Clock = clock
		return cfg
	}
}

// WithLogger sets the logger used for swallowed errors and listener panics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(cfg Config) Config {
		cfg.Logger = logger
		return cfg
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = o
		return cfg
	}
}

// WithErrorHandler receives fetch errors that the caches otherwise swallow.
func WithErrorHandler(fn func(cache, key string, err error)) Option {
	return func(cfg Config) Config {
		cfg.ErrorHandler = fn
		return cfg
	}
}

// WithAdminCounts sets the predicate deciding which roles get admin notification counts.
func WithAdminCounts(fn func(role string) bool) Option {
	return func(cfg Config) Config {
		cfg.AdminCounts = fn
		return cfg
	}
}

// StoreOption mutates StoreConfig when constructing a store.
type StoreOption func(StoreConfig) StoreConfig

// WithPrefix sets the key prefix for shared backends.
func WithPrefix(prefix string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithFileDir sets the directory used by the file driver.
func WithFileDir(dir string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.FileDir = dir
		return cfg
	}
}

// WithRedisClient sets the redis client; required when using DriverRedis.
func WithRedisClient(client RedisClient) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.RedisClient = client
		return cfg
	}
}

// WithNATSKeyValue sets the JetStream key-value bucket; required when using DriverNATS.
func WithNATSKeyValue(kv NATSKeyValue) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.NATSKeyValue = kv
		return cfg
	}
}

// WithSQL sets the database/sql driver name, DSN and table for DriverSQL.
func WithSQL(driverName, dsn, table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		cfg.SQLTable = table
		return cfg
	}
}

// WithDynamoClient injects a DynamoDB client.
func WithDynamoClient(client DynamoAPI) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoClient = client
		return cfg
	}
}

// WithDynamoEndpoint points the built-in DynamoDB client at a custom endpoint.
func WithDynamoEndpoint(endpoint string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoEndpoint = endpoint
		return cfg
	}
}

// WithDynamoRegion sets the DynamoDB region.
func WithDynamoRegion(region string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoRegion = region
		return cfg
	}
}

// WithDynamoTable sets the DynamoDB table name.
func WithDynamoTable(table string) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.DynamoTable = table
		return cfg
	}
}

// WithEncryptionKey enables AES-GCM encryption of persisted values.
func WithEncryptionKey(key []byte) StoreOption {
	return func(cfg StoreConfig) StoreConfig {
		cfg.EncryptionKey = key
		return cfg
	}
}
