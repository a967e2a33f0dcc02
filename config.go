package pollcache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultCacheDuration     = 30 * time.Second
	defaultMinUpdateInterval = 30 * time.Second
	defaultEventInterval     = 30 * time.Second
	defaultFetchTimeout      = 15 * time.Second

	defaultStorePrefix = "pollcache"
	defaultSQLTable    = "session_profiles"
	defaultDynamoTable = "session_profiles"
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "pollcache-session")
}

// Config controls refresh timing and the ambient hooks shared by every cache.
type Config struct {
	// CacheDuration is how long a fetched value is served without asking the backend.
	CacheDuration time.Duration

	// MinUpdateInterval is the minimum time between two fetches of the same key,
	// even when the cached value has expired.
	MinUpdateInterval time.Duration

	// EventInterval throttles EventBus.Trigger.
	EventInterval time.Duration

	// FetchTimeout bounds a single backend fetch.
	FetchTimeout time.Duration

	Clock    Clock
	Logger   logrus.FieldLogger
	Observer Observer

	// ErrorHandler, when set, receives every swallowed fetch error.
	ErrorHandler func(cache, key string, err error)

	// AdminCounts decides per role whether admin notification counts are fetched.
	AdminCounts func(role string) bool
}

func (c Config) withDefaults() Config {
	if c.CacheDuration <= 0 {
		c.CacheDuration = defaultCacheDuration
	}
	if c.MinUpdateInterval <= 0 {
		c.MinUpdateInterval = defaultMinUpdateInterval
	}
	if c.EventInterval <= 0 {
		c.EventInterval = defaultEventInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.AdminCounts == nil {
		c.AdminCounts = IsAdmin
	}
	return c
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return cfg.withDefaults()
}

// StoreConfig controls how the profile persistence Store is constructed.
type StoreConfig struct {
	Driver Driver

	// Prefix namespaces keys on shared backends (redis, nats, sql, dynamodb).
	Prefix string

	// FileDir controls where the file driver keeps its records.
	FileDir string

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// NATSKeyValue is required when DriverNATS is used.
	NATSKeyValue NATSKeyValue

	// SQLDriverName and SQLDSN are required when DriverSQL is used.
	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	// DynamoClient is optional; when nil a client is built from region/endpoint.
	DynamoClient   DynamoAPI
	DynamoEndpoint string
	DynamoRegion   string
	DynamoTable    string

	// EncryptionKey enables AES-GCM encryption of stored values (16, 24 or 32 bytes).
	EncryptionKey []byte
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Prefix == "" {
		c.Prefix = defaultStorePrefix
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = "us-east-1"
	}
	return c
}
