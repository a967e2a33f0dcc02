package pollcache

import (
	"context"
	"testing"

	gocache "github.com/patrickmn/go-cache"
)

func TestMemoryStoreContract(t *testing.T) {
	store := newMemoryStore()
	if store.Driver() != DriverMemory {
		t.Fatalf("unexpected driver %q", store.Driver())
	}
	runStoreContract(t, store)
}

func TestMemoryStoreIgnoresForeignValues(t *testing.T) {
	store := newMemoryStore().(*memoryStore)
	store.cache.Set("odd", 42, gocache.NoExpiration)
	if _, ok, err := store.Get(context.Background(), "odd"); err != nil || ok {
		t.Fatalf("expected non-byte value treated as miss, ok=%v err=%v", ok, err)
	}
}
