package pollcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNoSession is recorded when a refresh is attempted without a signed-in user.
var ErrNoSession = errors.New("pollcache: no active session")

const countsKey = "counts"

// NotificationCountsCache keeps the unread notification, message and admin
// notification counters in one global slot.
type NotificationCountsCache struct {
	cache            *PollingCache[*Counts]
	api              NotificationsAPI
	shouldFetchAdmin func(role string) bool
	logger           logrus.FieldLogger
}

// NewNotificationCountsCache builds the counters cache. shouldFetchAdmin decides per
// role whether the admin count is requested; nil means IsAdmin.
func NewNotificationCountsCache(api NotificationsAPI, shouldFetchAdmin func(role string) bool, opts ...Option) *NotificationCountsCache {
	if shouldFetchAdmin == nil {
		shouldFetchAdmin = IsAdmin
	}
	c := &NotificationCountsCache{
		api:              api,
		shouldFetchAdmin: shouldFetchAdmin,
	}
	c.cache = NewPollingCache[*Counts]("notification_counts", c.fetch, opts...)
	c.logger = c.cache.cfg.Logger
	return c
}

// Get returns the counters for id, refreshing them when stale.
func (c *NotificationCountsCache) Get(ctx context.Context, id Identity, force bool) *Counts {
	return c.cache.GetOrRefresh(WithIdentity(ctx, id), countsKey, force)
}

// Invalidate resets the throttle and refreshes the counters for id.
func (c *NotificationCountsCache) Invalidate(ctx context.Context, id Identity) *Counts {
	return c.cache.Invalidate(WithIdentity(ctx, id), countsKey)
}

// Clear forgets the counters, typically on logout.
func (c *NotificationCountsCache) Clear() {
	c.cache.Clear(countsKey)
}

// Cached returns the last known counters or nil.
func (c *NotificationCountsCache) Cached() *Counts {
	counts, _ := c.cache.Cached(countsKey)
	return counts
}

// LastError returns the error of the most recent refresh.
func (c *NotificationCountsCache) LastError() error {
	return c.cache.LastError(countsKey)
}

// Subscribe registers fn for counter updates; fn runs immediately with cached counters.
func (c *NotificationCountsCache) Subscribe(fn func(*Counts)) func() {
	return c.cache.Subscribe(countsKey, fn)
}

// FetchCounts loads the counters without caching. The notifications and messages
// calls run in parallel and both must succeed; the admin count is requested only
// when the role allows it, and its failure leaves AdminNotifications nil.
func (c *NotificationCountsCache) FetchCounts(ctx context.Context, id Identity) (*Counts, error) {
	if id.UserID == "" {
		return nil, ErrNoSession
	}
	var (
		counts Counts
		admin  *int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.api.UnreadNotifications(gctx, id.UserID)
		if err != nil {
			return fmt.Errorf("unread notifications: %w", err)
		}
		counts.Notifications = n
		return nil
	})
	g.Go(func() error {
		n, err := c.api.UnreadMessages(gctx, id.UserID)
		if err != nil {
			return fmt.Errorf("unread messages: %w", err)
		}
		counts.Messages = n
		return nil
	})
	if c.shouldFetchAdmin(id.Role) {
		g.Go(func() error {
			n, err := c.api.AdminUnreadNotifications(gctx, id.UserID)
			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"user_id": id.UserID,
					"error":   err,
				}).Debug("admin notification count unavailable")
				return nil
			}
			admin = &n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	counts.AdminNotifications = admin
	return &counts, nil
}

func (c *NotificationCountsCache) fetch(ctx context.Context, _ string) (*Counts, error) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return c.FetchCounts(ctx, id)
}
