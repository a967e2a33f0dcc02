package pollcache

import (
	"context"
	"time"
)

// VerificationStatusCache keeps identity verification status per user id. Entries,
// throttles and subscribers of different users are independent.
type VerificationStatusCache struct {
	cache *PollingCache[*VerificationStatus]
	api   VerificationAPI
}

// NewVerificationStatusCache builds the per-user verification cache.
func NewVerificationStatusCache(api VerificationAPI, opts ...Option) *VerificationStatusCache {
	c := &VerificationStatusCache{api: api}
	c.cache = NewPollingCache[*VerificationStatus]("verification_status", c.fetch, opts...)
	return c
}

// Status returns the verification status of userID, refreshing it when stale.
func (c *VerificationStatusCache) Status(ctx context.Context, userID string, force bool) *VerificationStatus {
	return c.cache.GetOrRefresh(ctx, userID, force)
}

// GetCached returns the last known status of userID without touching the network,
// for rendering before the asynchronous refresh resolves.
func (c *VerificationStatusCache) GetCached(userID string) *VerificationStatus {
	status, _ := c.cache.Cached(userID)
	return status
}

// Invalidate resets the throttle of userID and refreshes it.
func (c *VerificationStatusCache) Invalidate(ctx context.Context, userID string) *VerificationStatus {
	return c.cache.Invalidate(ctx, userID)
}

// Clear forgets the status and throttle of userID.
func (c *VerificationStatusCache) Clear(userID string) {
	c.cache.Clear(userID)
}

// ClearAll forgets every user's status.
func (c *VerificationStatusCache) ClearAll() {
	for _, userID := range c.cache.Keys() {
		c.cache.Clear(userID)
	}
}

// Subscribe registers fn for status updates of userID.
func (c *VerificationStatusCache) Subscribe(userID string, fn func(*VerificationStatus)) func() {
	return c.cache.Subscribe(userID, fn)
}

// LastError returns the error of the most recent refresh of userID.
func (c *VerificationStatusCache) LastError(userID string) error {
	return c.cache.LastError(userID)
}

// LastFetch returns when a refresh of userID was last started.
func (c *VerificationStatusCache) LastFetch(userID string) time.Time {
	return c.cache.LastFetch(userID)
}

func (c *VerificationStatusCache) fetch(ctx context.Context, userID string) (*VerificationStatus, error) {
	if userID == "" {
		return nil, ErrNoSession
	}
	return c.api.VerificationStatus(ctx, userID)
}
