package pollcache

import (
	"context"
	"testing"
)

// runStoreContract checks the behaviour every persistence driver shares.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	body := []byte("value")
	if err := store.Set(ctx, "alpha", body); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body[0] = 'X'
	got, ok, err := store.Get(ctx, "alpha")
	if err != nil || !ok || string(got) != "value" {
		t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, got, err)
	}
	got[0] = 'Y'
	again, _, _ := store.Get(ctx, "alpha")
	if string(again) != "value" {
		t.Fatalf("expected stored value unchanged, got %q", again)
	}

	if err := store.Set(ctx, "alpha", []byte("replaced")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if got, _, _ := store.Get(ctx, "alpha"); string(got) != "replaced" {
		t.Fatalf("expected overwrite, got %q", got)
	}

	if err := store.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, "alpha"); err != nil || ok {
		t.Fatalf("expected deleted key missing, ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("delete of missing key failed: %v", err)
	}

	for _, k := range []string{"a", "b"} {
		if err := store.Set(ctx, k, []byte(k)); err != nil {
			t.Fatalf("set %s failed: %v", k, err)
		}
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if _, ok, err := store.Get(ctx, k); err != nil || ok {
			t.Fatalf("expected %s flushed, ok=%v err=%v", k, ok, err)
		}
	}
}
