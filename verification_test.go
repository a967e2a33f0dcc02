package pollcache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goforj/pollcache"
	"github.com/goforj/pollcache/pollfake"
)

func TestVerificationKeyedIndependence(t *testing.T) {
	api := pollfake.New()
	api.SetVerification("a", &pollcache.VerificationStatus{IsVerified: false})
	api.SetVerification("b", &pollcache.VerificationStatus{IsVerified: true})
	clock := newStepClock()
	cache := pollcache.NewVerificationStatusCache(api, quietOptions(clock)...)
	ctx := context.Background()

	cache.Status(ctx, "a", false)
	cache.Status(ctx, "b", false)
	bFetch := cache.LastFetch("b")

	clock.Advance(5 * time.Second)
	api.SetVerification("a", &pollcache.VerificationStatus{IsVerified: true})
	if got := cache.Invalidate(ctx, "a"); got == nil || !got.IsVerified {
		t.Fatalf("expected refreshed status for a, got %+v", got)
	}

	if !cache.LastFetch("b").Equal(bFetch) {
		t.Fatalf("invalidating a must not touch b's throttle")
	}
	if got := cache.GetCached("b"); got == nil || !got.IsVerified {
		t.Fatalf("invalidating a must not touch b's value, got %+v", got)
	}
	api.AssertCalled(t, pollfake.OpVerification, "a", 2)
	api.AssertCalled(t, pollfake.OpVerification, "b", 1)
}

func TestVerificationGetCachedWithoutNetwork(t *testing.T) {
	api := pollfake.New()
	cache := pollcache.NewVerificationStatusCache(api, quietOptions(newStepClock())...)
	if got := cache.GetCached("u1"); got != nil {
		t.Fatalf("expected nil before any fetch, got %+v", got)
	}
	api.AssertTotal(t, pollfake.OpVerification, 0)
}

func TestVerificationSubscribePerUser(t *testing.T) {
	api := pollfake.New()
	api.SetVerification("a", &pollcache.VerificationStatus{IsVerified: true})
	api.SetVerification("b", &pollcache.VerificationStatus{})
	cache := pollcache.NewVerificationStatusCache(api, quietOptions(newStepClock())...)
	ctx := context.Background()

	var forA, forB int
	unsubA := cache.Subscribe("a", func(*pollcache.VerificationStatus) { forA++ })
	defer unsubA()
	unsubB := cache.Subscribe("b", func(*pollcache.VerificationStatus) { forB++ })
	defer unsubB()

	cache.Status(ctx, "a", false)
	if forA != 1 || forB != 0 {
		t.Fatalf("expected only a's subscriber notified, a=%d b=%d", forA, forB)
	}
}

func TestVerificationClearAndErrors(t *testing.T) {
	api := pollfake.New()
	api.SetVerification("a", &pollcache.VerificationStatus{IsVerified: true})
	api.SetVerification("b", &pollcache.VerificationStatus{IsVerified: true})
	cache := pollcache.NewVerificationStatusCache(api, quietOptions(newStepClock())...)
	ctx := context.Background()

	cache.Status(ctx, "a", false)
	cache.Status(ctx, "b", false)
	cache.Clear("a")
	if cache.GetCached("a") != nil || cache.GetCached("b") == nil {
		t.Fatalf("clear must only affect its key")
	}
	cache.ClearAll()
	if cache.GetCached("b") != nil {
		t.Fatalf("expected all statuses cleared")
	}

	if got := cache.Status(ctx, "", false); got != nil {
		t.Fatalf("expected nil for empty user id")
	}
	if !errors.Is(cache.LastError(""), pollcache.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", cache.LastError(""))
	}

	boom := errors.New("502")
	api.SetError(pollfake.OpVerification, boom)
	cache.Status(ctx, "c", false)
	if !errors.Is(cache.LastError("c"), boom) {
		t.Fatalf("expected backend error recorded, got %v", cache.LastError("c"))
	}
}
