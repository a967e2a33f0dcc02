package pollcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrNilFetcher is recorded when a cache was built without a fetch function.
var ErrNilFetcher = errors.New("pollcache: fetcher is nil")

// Fetcher loads the current value for key from the backend.
type Fetcher[T any] func(ctx context.Context, key string) (T, error)

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

type subscriber[T any] struct {
	id string
	fn func(T)
	// seen is the highest slot version delivered to fn.
	seen *atomic.Uint64
}

// slot holds everything the cache tracks for one key.
type slot[T any] struct {
	entry     *entry[T]
	lastFetch time.Time
	gen       uint64
	version   uint64
	inFlight  bool
	lastErr   error
	subs      []subscriber[T]
}

func (s *slot[T]) value() T {
	if s.entry == nil {
		var zero T
		return zero
	}
	return s.entry.value
}

// PollingCache serves a possibly stale value quickly, refreshes it at a bounded rate
// and never runs two fetches for the same key at once.
type PollingCache[T any] struct {
	name  string
	fetch Fetcher[T]
	cfg   Config

	mu    sync.Mutex
	slots map[string]*slot[T]
	group singleflight.Group

	// reject, when set, drops a successfully fetched value: the entry is cleared and
	// subscribers receive the zero value.
	reject func(ctx context.Context, key string, value T) bool
}

// NewPollingCache creates a cache named name that loads values with fetch.
//
// Example: poll a value at most every 30s
//
//	prices := pollcache.NewPollingCache("prices", func(ctx context.Context, key string) (*Quote, error) {
//		return api.Quote(ctx, key)
//	})
//	quote := prices.GetOrRefresh(ctx, "BTC-USD", false)
func NewPollingCache[T any](name string, fetch Fetcher[T], opts ...Option) *PollingCache[T] {
	return &PollingCache[T]{
		name:  name,
		fetch: fetch,
		cfg:   newConfig(opts),
		slots: make(map[string]*slot[T]),
	}
}

// Name returns the cache name used in logs and observer events.
func (c *PollingCache[T]) Name() string { return c.name }

// GetOrRefresh returns the value for key, fetching it when the cached entry is older
// than CacheDuration and the key was not fetched within MinUpdateInterval. force skips
// both checks but still joins a fetch that is already running. Fetch failures return
// the previous value (or the zero value).
func (c *PollingCache[T]) GetOrRefresh(ctx context.Context, key string, force bool) T {
	start := c.cfg.Clock.Now()
	value, fresh := c.decide(key, start, force)
	if fresh {
		c.observe(ctx, OpGet, key, true, nil, start)
		return value
	}
	return c.await(ctx, key)
}

// decide answers from the cache or commits to a fetch. The throttle timestamp is
// written in the same critical section as the check, so two callers cannot both
// observe "no recent fetch".
func (c *PollingCache[T]) decide(key string, now time.Time, force bool) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slot(key)
	if !force {
		if s.entry != nil && now.Sub(s.entry.fetchedAt) < c.cfg.CacheDuration {
			return s.entry.value, true
		}
		if !s.lastFetch.IsZero() && now.Sub(s.lastFetch) < c.cfg.MinUpdateInterval {
			return s.value(), true
		}
	}
	if !s.inFlight {
		s.lastFetch = now
	}
	var zero T
	return zero, false
}

// await joins the in-flight fetch for key or starts one. A caller whose context ends
// stops waiting and gets the cached value; the fetch itself keeps running.
func (c *PollingCache[T]) await(ctx context.Context, key string) T {
	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(ctx, key), nil
	})
	select {
	case res := <-ch:
		value, _ := res.Val.(T)
		return value
	case <-ctx.Done():
		value, _ := c.Cached(key)
		return value
	}
}

// run performs one fetch. Only one run per key is active at a time.
func (c *PollingCache[T]) run(parent context.Context, key string) T {
	c.mu.Lock()
	s := c.slot(key)
	gen := s.gen
	s.inFlight = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.FetchTimeout)
	defer cancel()

	start := c.cfg.Clock.Now()
	var (
		value T
		err   error
	)
	if c.fetch == nil {
		err = ErrNilFetcher
	} else {
		value, err = c.fetch(ctx, key)
	}

	if err != nil {
		c.mu.Lock()
		s.inFlight = false
		s.lastErr = err
		prev := s.value()
		c.mu.Unlock()
		c.fail(ctx, key, err, start)
		return prev
	}

	rejected := c.reject != nil && c.reject(ctx, key, value)

	c.mu.Lock()
	s.inFlight = false
	if s.gen != gen {
		// Cleared while the fetch was running; the result belongs to an old session.
		current := s.value()
		c.mu.Unlock()
		c.observe(ctx, OpFetch, key, false, nil, start)
		return current
	}
	s.lastErr = nil
	if rejected {
		s.entry = nil
		var zero T
		value = zero
	} else {
		s.entry = &entry[T]{value: value, fetchedAt: c.cfg.Clock.Now()}
	}
	s.version++
	version := s.version
	subs := append([]subscriber[T](nil), s.subs...)
	c.mu.Unlock()

	// Subscribers may refresh the same key; they must start a new flight rather than
	// join this one.
	c.group.Forget(key)
	c.observe(ctx, OpFetch, key, false, nil, start)
	c.notify(key, subs, value, version)
	return value
}

// Subscribe registers fn for updates to key and returns a function that removes it.
// When a value is already cached fn is called with it before Subscribe returns,
// unless a newer value reached fn first.
func (c *PollingCache[T]) Subscribe(key string, fn func(T)) func() {
	id := uuid.NewString()
	sub := subscriber[T]{id: id, fn: fn, seen: new(atomic.Uint64)}
	c.mu.Lock()
	s := c.slot(key)
	s.subs = append(s.subs, sub)
	var (
		current T
		version uint64
		has     bool
	)
	if s.entry != nil {
		current, version, has = s.entry.value, s.version, true
	}
	c.mu.Unlock()

	c.observe(context.Background(), OpSubscribe, key, has, nil, c.cfg.Clock.Now())
	if has {
		c.invoke(key, sub, current, version)
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(key, id) })
	}
}

// Invalidate resets the throttle for key and forces a refresh.
func (c *PollingCache[T]) Invalidate(ctx context.Context, key string) T {
	start := c.cfg.Clock.Now()
	c.mu.Lock()
	c.slot(key).lastFetch = time.Time{}
	c.mu.Unlock()
	c.observe(ctx, OpInvalidate, key, false, nil, start)
	return c.GetOrRefresh(ctx, key, true)
}

// Clear drops the cached entry and throttle timestamp for key without fetching or
// notifying. A fetch already running for key will not store its result.
func (c *PollingCache[T]) Clear(key string) {
	start := c.cfg.Clock.Now()
	c.mu.Lock()
	if s, ok := c.slots[key]; ok {
		s.entry = nil
		s.lastFetch = time.Time{}
		s.lastErr = nil
		s.gen++
	}
	c.mu.Unlock()
	c.observe(context.Background(), OpClear, key, false, nil, start)
}

// Prime stores value for key as if it had been fetched at fetchedAt and notifies
// subscribers. A zero fetchedAt leaves the entry stale so the next read refreshes it.
func (c *PollingCache[T]) Prime(key string, value T, fetchedAt time.Time) {
	c.mu.Lock()
	s := c.slot(key)
	s.entry = &entry[T]{value: value, fetchedAt: fetchedAt}
	s.version++
	version := s.version
	subs := append([]subscriber[T](nil), s.subs...)
	c.mu.Unlock()
	c.notify(key, subs, value, version)
}

// Cached returns the cached value for key without touching the network.
func (c *PollingCache[T]) Cached(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok || s.entry == nil {
		var zero T
		return zero, false
	}
	return s.entry.value, true
}

// FetchedAt returns when the cached value for key was stored.
func (c *PollingCache[T]) FetchedAt(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok || s.entry == nil {
		return time.Time{}, false
	}
	return s.entry.fetchedAt, true
}

// LastFetch returns the time the last fetch for key was committed to.
func (c *PollingCache[T]) LastFetch(key string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[key]; ok {
		return s.lastFetch
	}
	return time.Time{}
}

// InFlight reports whether a fetch for key is currently running.
func (c *PollingCache[T]) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	return ok && s.inFlight
}

// LastError returns the error of the most recent fetch for key, or nil after a success.
func (c *PollingCache[T]) LastError(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[key]; ok {
		return s.lastErr
	}
	return nil
}

// Keys returns every key the cache has seen, sorted.
func (c *PollingCache[T]) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.slots))
	for key := range c.slots {
		keys = append(keys, key)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// slot returns the state for key, creating it. Callers hold c.mu.
func (c *PollingCache[T]) slot(key string) *slot[T] {
	s, ok := c.slots[key]
	if !ok {
		s = &slot[T]{}
		c.slots[key] = s
	}
	return s
}

func (c *PollingCache[T]) unsubscribe(key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return
	}
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (c *PollingCache[T]) notify(key string, subs []subscriber[T], value T, version uint64) {
	for _, sub := range subs {
		c.invoke(key, sub, value, version)
	}
}

// invoke calls sub with value unless sub already received a newer version.
func (c *PollingCache[T]) invoke(key string, sub subscriber[T], value T, version uint64) {
	for {
		seen := sub.seen.Load()
		if seen >= version {
			return
		}
		if sub.seen.CompareAndSwap(seen, version) {
			break
		}
	}
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.WithFields(logrus.Fields{
				"cache":      c.name,
				"key":        key,
				"subscriber": sub.id,
				"panic":      r,
			}).Error("cache subscriber panicked")
		}
	}()
	sub.fn(value)
}

func (c *PollingCache[T]) fail(ctx context.Context, key string, err error, start time.Time) {
	c.cfg.Logger.WithFields(logrus.Fields{
		"cache": c.name,
		"key":   key,
		"error": err,
	}).Warn("cache refresh failed")
	if c.cfg.ErrorHandler != nil {
		c.cfg.ErrorHandler(c.name, key, err)
	}
	c.observe(ctx, OpFetch, key, false, err, start)
}

func (c *PollingCache[T]) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if c.cfg.Observer == nil {
		return
	}
	c.cfg.Observer.OnPollOp(ctx, c.name, op, key, hit, err, c.cfg.Clock.Now().Sub(start))
}
