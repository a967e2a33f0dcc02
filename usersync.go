package pollcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const userKey = "user"

var errEmptyProfile = errors.New("pollcache: backend returned no profile")

// UserSyncManager keeps the signed-in user's profile in sync with the backend and with
// the persisted ProfileStore. A profile reported as blocked ends the session: the cache
// is cleared, subscribers receive nil and the persisted profile is deleted.
type UserSyncManager struct {
	cache    *PollingCache[*Profile]
	api      UserAPI
	profiles *ProfileStore
	logger   logrus.FieldLogger

	// session changes on login and logout; refreshes started in an older session do
	// not write to the ProfileStore.
	mu      sync.Mutex
	session uint64
}

// NewUserSyncManager builds the manager. profiles may be nil for a session that is
// never persisted.
func NewUserSyncManager(api UserAPI, profiles *ProfileStore, opts ...Option) *UserSyncManager {
	if profiles == nil {
		profiles = NewProfileStore(nil)
	}
	m := &UserSyncManager{
		api:      api,
		profiles: profiles,
	}
	m.cache = NewPollingCache[*Profile]("user_sync", m.fetch, opts...)
	m.cache.reject = rejectBlocked
	m.logger = m.cache.cfg.Logger
	return m
}

// Load restores the persisted profile at session start. The restored profile is
// served immediately but treated as stale, so the next Sync asks the backend.
func (m *UserSyncManager) Load(ctx context.Context) (*Profile, error) {
	profile, err := m.profiles.Load(ctx)
	if err != nil || profile == nil {
		return nil, err
	}
	m.cache.Prime(userKey, profile, time.Time{})
	return profile, nil
}

// Sync returns the current profile, refreshing it when stale.
func (m *UserSyncManager) Sync(ctx context.Context, force bool) *Profile {
	return m.cache.GetOrRefresh(ctx, userKey, force)
}

// ForceSyncImmediate resets the throttle and refreshes now. Use it after actions that
// are known to change the user server side, such as a balance change.
func (m *UserSyncManager) ForceSyncImmediate(ctx context.Context) *Profile {
	return m.cache.Invalidate(ctx, userKey)
}

// Subscribe registers fn for profile updates. fn receives nil when the session ends
// because the account was blocked.
func (m *UserSyncManager) Subscribe(fn func(*Profile)) func() {
	return m.cache.Subscribe(userKey, fn)
}

// Current returns the cached profile without touching the network.
func (m *UserSyncManager) Current() *Profile {
	profile, _ := m.cache.Cached(userKey)
	return profile
}

// Identity returns the identity of the cached profile.
func (m *UserSyncManager) Identity() Identity {
	return m.Current().Identity()
}

// LastError returns the error of the most recent refresh.
func (m *UserSyncManager) LastError() error {
	return m.cache.LastError(userKey)
}

// SetProfile starts a session with profile, typically right after login. The profile
// is persisted first, then cached as fresh and delivered to subscribers. It does not
// touch the other caches; Services.Login also drops the previous user's counters.
func (m *UserSyncManager) SetProfile(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return errEmptyProfile
	}
	m.mu.Lock()
	if err := m.profiles.Save(ctx, profile); err != nil {
		m.mu.Unlock()
		return err
	}
	m.session++
	m.cache.Clear(userKey)
	m.mu.Unlock()

	m.cache.Prime(userKey, profile, m.cache.cfg.Clock.Now())
	return nil
}

// Logout drops the cached profile and its throttle and deletes the persisted profile.
// Subscribers are not notified.
func (m *UserSyncManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session++
	m.cache.Clear(userKey)
	return m.profiles.Remove(ctx)
}

func (m *UserSyncManager) fetch(ctx context.Context, _ string) (*Profile, error) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	userID, err := m.sessionUserID(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := m.api.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, errEmptyProfile
	}
	m.persist(ctx, session, profile)
	return profile, nil
}

// persist writes a refreshed profile, or removes the persisted one when the account is
// blocked, unless the session changed while the request was running.
func (m *UserSyncManager) persist(ctx context.Context, session uint64, profile *Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != session {
		return
	}
	fields := logrus.Fields{"user_id": profile.ID}
	if profile.IsBlocked {
		if err := m.profiles.Remove(ctx); err != nil {
			fields["error"] = err
			m.logger.WithFields(fields).Error("remove persisted profile of blocked account failed")
			return
		}
		m.logger.WithFields(fields).Info("account blocked, session cleared")
		return
	}
	if err := m.profiles.Save(ctx, profile); err != nil {
		fields["error"] = err
		m.logger.WithFields(fields).Warn("persist refreshed profile failed")
	}
}

// sessionUserID prefers the cached profile and falls back to the persisted one.
func (m *UserSyncManager) sessionUserID(ctx context.Context) (string, error) {
	if current := m.Current(); current != nil && current.ID != "" {
		return current.ID, nil
	}
	profile, err := m.profiles.Load(ctx)
	if err != nil {
		return "", err
	}
	if profile == nil || profile.ID == "" {
		return "", ErrNoSession
	}
	return profile.ID, nil
}

func rejectBlocked(_ context.Context, _ string, profile *Profile) bool {
	return profile != nil && profile.IsBlocked
}
