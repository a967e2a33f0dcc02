package pollcache

import (
	"context"
	"fmt"
)

// NewStore returns a concrete persistence store for the requested driver.
// Construction failures yield a store that reports the error on every call; use
// StoreError to inspect it.
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	store := pollcache.NewStore(ctx, pollcache.StoreConfig{
//		Driver: pollcache.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewStore(ctx context.Context, cfg StoreConfig) Store {
	cfg = cfg.withDefaults()
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case DriverNull:
		store = newNullStore()
	case DriverFile:
		store = newFileStore(cfg.FileDir)
	case DriverRedis:
		store = newRedisStore(cfg.RedisClient, cfg.Prefix)
	case DriverNATS:
		store = newNATSStore(cfg.NATSKeyValue, cfg.Prefix)
	case DriverSQL:
		store, err = newSQLStore(ctx, cfg)
	case DriverDynamo:
		store, err = newDynamoStore(ctx, cfg)
	case DriverMemory:
		store = newMemoryStore()
	default:
		err = fmt.Errorf("pollcache: unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	store, err = newEncryptingStore(store, cfg.EncryptionKey)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	return store
}

// NewStoreWith builds a store using a driver and a set of functional options.
//
// Example: redis store (options)
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := pollcache.NewStoreWith(ctx, pollcache.DriverRedis,
//		pollcache.WithRedisClient(redisClient),
//		pollcache.WithPrefix("forum"),
//	)
//	fmt.Println(store.Driver()) // redis
func NewStoreWith(ctx context.Context, driver Driver, opts ...StoreOption) Store {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMemoryStore is a convenience for an in-process store.
func NewMemoryStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverMemory, opts...)
}

// NewFileStore is a convenience for a filesystem-backed store.
func NewFileStore(ctx context.Context, dir string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverFile, append([]StoreOption{WithFileDir(dir)}, opts...)...)
}

// NewRedisStore is a convenience for a redis-backed store. Redis client is required.
func NewRedisStore(ctx context.Context, client RedisClient, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverRedis, append([]StoreOption{WithRedisClient(client)}, opts...)...)
}

// NewNATSStore is a convenience for a JetStream key-value backed store.
func NewNATSStore(ctx context.Context, kv NATSKeyValue, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverNATS, append([]StoreOption{WithNATSKeyValue(kv)}, opts...)...)
}

// NewSQLStore is a convenience for a database/sql backed store (pgx, mysql or sqlite).
func NewSQLStore(ctx context.Context, driverName, dsn string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverSQL, append([]StoreOption{WithSQL(driverName, dsn, "")}, opts...)...)
}

// NewDynamoStore is a convenience for a DynamoDB backed store.
func NewDynamoStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverDynamo, opts...)
}

// StoreError returns the construction error of a store built by NewStore, if any.
func StoreError(store Store) error {
	if es, ok := store.(*errorStore); ok {
		return es.err
	}
	return nil
}
