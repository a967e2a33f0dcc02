package pollcache_test

import (
	"io"
	"sync"
	"time"

	"github.com/goforj/pollcache"
	"github.com/sirupsen/logrus"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietOptions(clock pollcache.Clock) []pollcache.Option {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return []pollcache.Option{pollcache.WithClock(clock), pollcache.WithLogger(logger)}
}
