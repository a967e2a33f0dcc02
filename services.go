package pollcache

import (
	"context"
	"sync"
)

// Services is the set of session caches an application builds once at bootstrap and
// hands to every component that renders session state.
type Services struct {
	Events       *EventBus
	Counts       *NotificationCountsCache
	Users        *UserSyncManager
	Verification *VerificationStatusCache

	wg          sync.WaitGroup
	unsubscribe func()
}

// Snapshot is the session state returned by Services.Poll.
type Snapshot struct {
	Profile      *Profile
	Counts       *Counts
	Verification *VerificationStatus
}

// NewServices builds the caches over api and profiles. Every event delivered by the
// bus refreshes the notification counts of the signed-in user in the background.
func NewServices(api Backend, profiles *ProfileStore, opts ...Option) *Services {
	cfg := newConfig(opts)
	s := &Services{
		Events:       NewEventBus(opts...),
		Counts:       NewNotificationCountsCache(api, cfg.AdminCounts, opts...),
		Users:        NewUserSyncManager(api, profiles, opts...),
		Verification: NewVerificationStatusCache(api, opts...),
	}
	s.unsubscribe = s.Events.Subscribe(s.refreshCounts)
	return s
}

// Poll refreshes whatever is stale for the signed-in user and returns the result.
// Without a session only the (nil) profile is returned.
func (s *Services) Poll(ctx context.Context, force bool) Snapshot {
	profile := s.Users.Sync(ctx, force)
	if profile == nil {
		return Snapshot{}
	}
	id := profile.Identity()
	snap := Snapshot{Profile: profile}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		snap.Counts = s.Counts.Get(ctx, id, force)
	}()
	go func() {
		defer wg.Done()
		snap.Verification = s.Verification.Status(ctx, id.UserID, force)
	}()
	wg.Wait()
	return snap
}

// Login starts a session for profile. Counters and verification statuses of the
// previous session are dropped first so they are never served for the new user.
func (s *Services) Login(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return errEmptyProfile
	}
	s.Counts.Clear()
	s.Verification.ClearAll()
	return s.Users.SetProfile(ctx, profile)
}

// Logout clears every cache and the persisted profile. Subscribers are not notified.
func (s *Services) Logout(ctx context.Context) error {
	s.Counts.Clear()
	s.Verification.ClearAll()
	return s.Users.Logout(ctx)
}

// Wait blocks until background refreshes started by the event bus finish.
func (s *Services) Wait() {
	s.wg.Wait()
}

// Close detaches the event bus wiring and waits for background refreshes.
func (s *Services) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.Wait()
}

func (s *Services) refreshCounts() {
	id := s.Users.Identity()
	if id.UserID == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Counts.Invalidate(context.Background(), id)
	}()
}
