package pollcache

import (
	"context"
	"encoding/json"
)

// ProfileKey is the key the current user profile is persisted under.
const ProfileKey = "user"

// ProfileStore is a typed JSON view over Store holding the signed-in user.
// It is the single source of truth for "current user" across restarts.
type ProfileStore struct {
	store Store
}

// NewProfileStore wraps store.
func NewProfileStore(store Store) *ProfileStore {
	if store == nil {
		store = newNullStore()
	}
	return &ProfileStore{store: store}
}

// Store returns the underlying store implementation.
func (p *ProfileStore) Store() Store {
	return p.store
}

// Load returns the persisted profile, or nil when none is stored.
func (p *ProfileStore) Load(ctx context.Context) (*Profile, error) {
	body, ok, err := p.store.Get(ctx, ProfileKey)
	if err != nil || !ok {
		return nil, err
	}
	var out Profile
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Save persists profile, replacing any previous one.
func (p *ProfileStore) Save(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return p.Remove(ctx)
	}
	body, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, ProfileKey, body)
}

// Remove deletes the persisted profile.
func (p *ProfileStore) Remove(ctx context.Context) error {
	return p.store.Delete(ctx, ProfileKey)
}

// Exists reports whether a profile is persisted.
func (p *ProfileStore) Exists(ctx context.Context) (bool, error) {
	_, ok, err := p.store.Get(ctx, ProfileKey)
	return ok, err
}
