package pollcache_test

import (
	"context"
	"testing"

	"github.com/goforj/pollcache"
	"github.com/goforj/pollcache/pollfake"
)

func newServicesFixture(t *testing.T, opts ...pollcache.Option) (*pollfake.Backend, *pollcache.ProfileStore, *pollcache.Services) {
	t.Helper()
	api := pollfake.New()
	api.SetCount(pollfake.OpNotifications, 1)
	api.SetCount(pollfake.OpMessages, 2)
	api.SetCount(pollfake.OpAdminNotifications, 3)
	api.SetVerification("u1", &pollcache.VerificationStatus{IsVerified: true})
	profiles := pollcache.NewProfileStore(pollcache.NewMemoryStore(context.Background()))
	svc := pollcache.NewServices(api, profiles, append(quietOptions(newStepClock()), opts...)...)
	t.Cleanup(svc.Close)
	return api, profiles, svc
}

func TestServicesPollWithoutSession(t *testing.T) {
	api, _, svc := newServicesFixture(t)
	snap := svc.Poll(context.Background(), false)
	if snap.Profile != nil || snap.Counts != nil || snap.Verification != nil {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	api.AssertTotal(t, pollfake.OpNotifications, 0)
}

func TestServicesPoll(t *testing.T) {
	api, _, svc := newServicesFixture(t)
	ctx := context.Background()
	if err := svc.Users.SetProfile(ctx, &pollcache.Profile{ID: "u1", Role: pollcache.RoleAdmin}); err != nil {
		t.Fatalf("set profile: %v", err)
	}

	snap := svc.Poll(ctx, false)
	if snap.Profile == nil || snap.Profile.ID != "u1" {
		t.Fatalf("unexpected profile %+v", snap.Profile)
	}
	if snap.Counts == nil || snap.Counts.Notifications != 1 || snap.Counts.AdminNotifications == nil {
		t.Fatalf("unexpected counts %+v", snap.Counts)
	}
	if snap.Verification == nil || !snap.Verification.IsVerified {
		t.Fatalf("unexpected verification %+v", snap.Verification)
	}

	svc.Poll(ctx, false)
	api.AssertCalled(t, pollfake.OpNotifications, "u1", 1)
	api.AssertCalled(t, pollfake.OpVerification, "u1", 1)
	api.AssertTotal(t, pollfake.OpGetUser, 0)
}

func TestServicesEventRefreshesCounts(t *testing.T) {
	api, _, svc := newServicesFixture(t)
	ctx := context.Background()
	svc.Users.SetProfile(ctx, &pollcache.Profile{ID: "u1"})
	svc.Poll(ctx, false)

	var updates int
	unsub := svc.Counts.Subscribe(func(*pollcache.Counts) { updates++ })
	defer unsub()
	updates = 0

	api.SetCount(pollfake.OpMessages, 8)
	if !svc.Events.Trigger() {
		t.Fatalf("expected first trigger to deliver")
	}
	svc.Wait()
	if got := svc.Counts.Cached(); got == nil || got.Messages != 8 {
		t.Fatalf("expected counts refreshed by event, got %+v", got)
	}
	if updates != 1 {
		t.Fatalf("expected one counts update, got %d", updates)
	}

	// Throttled trigger does nothing.
	svc.Events.Trigger()
	svc.Wait()
	api.AssertCalled(t, pollfake.OpMessages, "u1", 2)

	svc.Events.TriggerImmediate()
	svc.Wait()
	api.AssertCalled(t, pollfake.OpMessages, "u1", 3)
}

func TestServicesEventWithoutSessionSkipsRefresh(t *testing.T) {
	api, _, svc := newServicesFixture(t)
	svc.Events.TriggerImmediate()
	svc.Wait()
	api.AssertTotal(t, pollfake.OpNotifications, 0)
}

func TestServicesLogout(t *testing.T) {
	_, profiles, svc := newServicesFixture(t)
	ctx := context.Background()
	svc.Users.SetProfile(ctx, &pollcache.Profile{ID: "u1"})
	svc.Poll(ctx, false)

	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if svc.Users.Current() != nil || svc.Counts.Cached() != nil || svc.Verification.GetCached("u1") != nil {
		t.Fatalf("expected every cache cleared")
	}
	if ok, _ := profiles.Exists(ctx); ok {
		t.Fatalf("expected persisted profile removed")
	}
}

func TestServicesAdminPredicateOption(t *testing.T) {
	api, _, svc := newServicesFixture(t, pollcache.WithAdminCounts(func(string) bool { return false }))
	ctx := context.Background()
	svc.Users.SetProfile(ctx, &pollcache.Profile{ID: "u1", Role: pollcache.RoleAdmin})
	svc.Poll(ctx, false)
	api.AssertNotCalled(t, pollfake.OpAdminNotifications, "u1")
}

func TestServicesCloseDetachesBus(t *testing.T) {
	api := pollfake.New()
	svc := pollcache.NewServices(api, nil, quietOptions(newStepClock())...)
	if svc.Events.Len() != 1 {
		t.Fatalf("expected counts listener on the bus")
	}
	svc.Close()
	svc.Close()
	if svc.Events.Len() != 0 {
		t.Fatalf("expected listener removed")
	}
}

func TestServicesLoginDropsPreviousUserState(t *testing.T) {
	api, profiles, svc := newServicesFixture(t)
	ctx := context.Background()
	if err := svc.Login(ctx, &pollcache.Profile{ID: "u1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	svc.Poll(ctx, false)
	if svc.Counts.Cached() == nil || svc.Verification.GetCached("u1") == nil {
		t.Fatalf("expected first session cached")
	}

	if err := svc.Login(ctx, &pollcache.Profile{ID: "u2"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if svc.Counts.Cached() != nil || svc.Verification.GetCached("u1") != nil {
		t.Fatalf("expected previous user's counts and verification dropped")
	}
	svc.Poll(ctx, false)
	api.AssertCalled(t, pollfake.OpNotifications, "u2", 1)
	if stored, _ := profiles.Load(ctx); stored == nil || stored.ID != "u2" {
		t.Fatalf("expected new profile persisted, got %+v", stored)
	}
	if err := svc.Login(ctx, nil); err == nil {
		t.Fatalf("expected error for nil profile")
	}
}
