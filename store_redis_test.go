package pollcache

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubRedisClient struct {
	mu    sync.Mutex
	store map[string]string

	getErr  error
	setErr  error
	delErr  error
	scanErr error
}

func newStubRedisClient() *stubRedisClient {
	return &stubRedisClient{store: make(map[string]string)}
}

func (c *stubRedisClient) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return redis.NewStringResult("", c.getErr)
	}
	v, ok := c.store[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *stubRedisClient) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return redis.NewStatusResult("", c.setErr)
	}
	if expiration != 0 {
		return redis.NewStatusResult("", errors.New("unexpected expiration"))
	}
	switch v := value.(type) {
	case []byte:
		c.store[key] = string(v)
	case string:
		c.store[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (c *stubRedisClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delErr != nil {
		return redis.NewIntResult(0, c.delErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := c.store[k]; ok {
			delete(c.store, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Scan returns matching keys one per page to exercise cursor handling.
func (c *stubRedisClient) Scan(_ context.Context, cursor uint64, match string, _ int64) *redis.ScanCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, c.scanErr)
	}
	var keys []string
	for k := range c.store {
		if ok, _ := path.Match(match, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	next := cursor + 1
	if len(keys) == 1 {
		next = 0
	}
	return redis.NewScanCmdResult(keys[:1], next, nil)
}

func TestRedisStoreContract(t *testing.T) {
	store := newRedisStore(newStubRedisClient(), "pfx")
	if store.Driver() != DriverRedis {
		t.Fatalf("unexpected driver %q", store.Driver())
	}
	runStoreContract(t, store)
}

func TestRedisStorePrefixesKeysAndFlushScopes(t *testing.T) {
	ctx := context.Background()
	client := newStubRedisClient()
	client.store["other:user"] = "keep"
	store := newRedisStore(client, "forum")

	if err := store.Set(ctx, "user", []byte("v")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := client.store["forum:user"]; !ok {
		t.Fatalf("expected prefixed key, got %v", client.store)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if client.store["other:user"] != "keep" {
		t.Fatalf("flush must not touch other prefixes")
	}

	defaulted := newRedisStore(client, "").(*redisStore)
	if defaulted.prefix != defaultStorePrefix {
		t.Fatalf("expected default prefix, got %q", defaulted.prefix)
	}
}

func TestRedisStoreNilClientErrors(t *testing.T) {
	store := newRedisStore(nil, "")
	ctx := context.Background()
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected get error when redis client is nil")
	}
	if err := store.Set(ctx, "k", []byte("v")); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected set error when redis client is nil")
	}
	if err := store.Delete(ctx, "k"); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected delete error when redis client is nil")
	}
	if err := store.Flush(ctx); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected flush error when redis client is nil")
	}
}

func TestRedisStoreErrorPropagation(t *testing.T) {
	ctx := context.Background()

	client := newStubRedisClient()
	client.getErr = errors.New("get")
	if _, _, err := newRedisStore(client, "pfx").Get(ctx, "k"); err == nil {
		t.Fatalf("expected get error")
	}

	client = newStubRedisClient()
	client.setErr = errors.New("set")
	if err := newRedisStore(client, "pfx").Set(ctx, "k", []byte("v")); err == nil {
		t.Fatalf("expected set error")
	}

	client = newStubRedisClient()
	client.scanErr = errors.New("scan")
	if err := newRedisStore(client, "pfx").Flush(ctx); err == nil {
		t.Fatalf("expected flush scan error")
	}

	client = newStubRedisClient()
	client.delErr = errors.New("del")
	client.store["pfx:a"] = "1"
	if err := newRedisStore(client, "pfx").Flush(ctx); err == nil {
		t.Fatalf("expected flush delete error")
	}
}
