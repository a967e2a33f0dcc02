package pollcache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// EventBus fans out "something changed" signals to listeners, at most once per
// EventInterval unless the caller asks for immediate delivery.
type EventBus struct {
	mu          sync.Mutex
	interval    time.Duration
	limiter     *rate.Limiter
	lastTrigger time.Time
	listeners   []busListener
	nextID      uint64

	clock  Clock
	logger logrus.FieldLogger
}

type busListener struct {
	id uint64
	fn func()
}

// NewEventBus creates an event bus throttled to one delivery per EventInterval.
//
// Example: throttled and immediate triggers
//
//	bus := pollcache.NewEventBus()
//	unsubscribe := bus.Subscribe(func() { fmt.Println("changed") })
//	defer unsubscribe()
//	bus.Trigger()          // changed
//	bus.Trigger()          // dropped, inside the interval
//	bus.TriggerImmediate() // changed
func NewEventBus(opts ...Option) *EventBus {
	cfg := newConfig(opts)
	return &EventBus{
		interval: cfg.EventInterval,
		limiter:  newTriggerLimiter(cfg.EventInterval),
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

func newTriggerLimiter(interval time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Subscribe registers fn and returns a function that removes it.
// Nothing is delivered at subscribe time.
func (b *EventBus) Subscribe(fn func()) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, busListener{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// Trigger delivers to every listener unless the previous delivery happened less than
// EventInterval ago, in which case the call is dropped. It reports whether it delivered.
func (b *EventBus) Trigger() bool {
	now := b.clock.Now()
	b.mu.Lock()
	if !b.limiter.AllowN(now, 1) {
		b.mu.Unlock()
		return false
	}
	b.lastTrigger = now
	listeners := b.snapshot()
	b.mu.Unlock()

	b.deliver(listeners)
	return true
}

// TriggerImmediate delivers to every listener regardless of the throttle and restarts
// the interval from now.
func (b *EventBus) TriggerImmediate() {
	now := b.clock.Now()
	b.mu.Lock()
	b.limiter = newTriggerLimiter(b.interval)
	b.limiter.AllowN(now, 1)
	b.lastTrigger = now
	listeners := b.snapshot()
	b.mu.Unlock()

	b.deliver(listeners)
}

// LastTrigger returns the time of the last effective delivery.
func (b *EventBus) LastTrigger() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastTrigger
}

// Len returns the number of registered listeners.
func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *EventBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *EventBus) snapshot() []busListener {
	out := make([]busListener, len(b.listeners))
	copy(out, b.listeners)
	return out
}

func (b *EventBus) deliver(listeners []busListener) {
	for _, l := range listeners {
		b.invoke(l)
	}
}

// invoke isolates a listener so a panic does not stop delivery to the rest.
func (b *EventBus) invoke(l busListener) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"listener": l.id,
				"panic":    r,
			}).Error("event bus listener panicked")
		}
	}()
	l.fn()
}
