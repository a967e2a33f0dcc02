package pollcache

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// countingFetcher returns values from next and counts calls. When gate is set each
// call announces itself on started and waits for gate to close.
type countingFetcher[T any] struct {
	calls   atomic.Int32
	mu      sync.Mutex
	next    func(key string, call int) (T, error)
	gate    chan struct{}
	started chan string
	ctxErrs []error
}

func (f *countingFetcher[T]) fetch(ctx context.Context, key string) (T, error) {
	call := int(f.calls.Add(1))
	if f.gate != nil {
		f.started <- key
		<-f.gate
	}
	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	next := f.next
	f.mu.Unlock()
	return next(key, call)
}

func (f *countingFetcher[T]) block() {
	f.gate = make(chan struct{})
	f.started = make(chan string, 16)
}

// recordingObserver keeps every event.
type recordingObserver struct {
	mu     sync.Mutex
	events []observedOp
}

type observedOp struct {
	cache string
	op    string
	key   string
	hit   bool
	err   error
}

func (o *recordingObserver) OnPollOp(_ context.Context, cache, op, key string, hit bool, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, observedOp{cache: cache, op: op, key: key, hit: hit, err: err})
}

func (o *recordingObserver) count(op string, hit bool) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.events {
		if e.op == op && e.hit == hit {
			n++
		}
	}
	return n
}
