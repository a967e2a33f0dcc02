package pollcache

import (
	"context"
	"time"
)

// Operation names reported to observers.
const (
	OpGet        = "get"
	OpFetch      = "fetch"
	OpInvalidate = "invalidate"
	OpClear      = "clear"
	OpSubscribe  = "subscribe"
)

// Observer receives events for cache operations.
// hit reports that the operation was answered without a network call.
type Observer interface {
	OnPollOp(ctx context.Context, cache string, op string, key string, hit bool, err error, dur time.Duration)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, cache string, op string, key string, hit bool, err error, dur time.Duration)

// OnPollOp implements Observer.
func (f ObserverFunc) OnPollOp(ctx context.Context, cache string, op string, key string, hit bool, err error, dur time.Duration) {
	if f == nil {
		return
	}
	f(ctx, cache, op, key, hit, err, dur)
}
