// Package pollfake provides a deterministic in-memory backend for tests of code that
// consumes pollcache, with call-count assertions.
package pollfake

import (
	"context"
	"sync"
	"testing"

	"github.com/goforj/pollcache"
)

// Op identifies a backend call for assertions.
type Op string

const (
	OpNotifications      Op = "notifications"
	OpMessages           Op = "messages"
	OpAdminNotifications Op = "admin_notifications"
	OpGetUser            Op = "get_user"
	OpVerification       Op = "verification"
)

// Backend is a fake pollcache.Backend. Values and errors are configured per op; calls
// are recorded per op and user id.
type Backend struct {
	mu           sync.Mutex
	counts       map[Op]map[string]int
	ints         map[Op]int
	errs         map[Op]error
	users        map[string]*pollcache.Profile
	verification map[string]*pollcache.VerificationStatus
	gate         chan struct{}
	started      chan Op
}

var _ pollcache.Backend = (*Backend)(nil)

// New creates an empty fake. Counts default to zero, users and statuses to nil.
func New() *Backend {
	return &Backend{
		counts:       make(map[Op]map[string]int),
		ints:         make(map[Op]int),
		errs:         make(map[Op]error),
		users:        make(map[string]*pollcache.Profile),
		verification: make(map[string]*pollcache.VerificationStatus),
	}
}

// SetCount sets the value returned by one of the counter ops.
func (b *Backend) SetCount(op Op, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ints[op] = n
}

// SetError makes op fail with err; nil clears it.
func (b *Backend) SetError(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, op)
		return
	}
	b.errs[op] = err
}

// SetUser sets the profile returned by GetUser for profile.ID.
func (b *Backend) SetUser(profile *pollcache.Profile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[profile.ID] = profile
}

// SetVerification sets the status returned for userID.
func (b *Backend) SetVerification(userID string, status *pollcache.VerificationStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verification[userID] = status
}

// Block makes every call wait until Release. Started receives the op of every call
// that reached the fake.
func (b *Backend) Block() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
	b.started = make(chan Op, 64)
}

// Started returns the channel announcing calls made while blocked.
func (b *Backend) Started() <-chan Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Release unblocks waiting and future calls.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

// UnreadNotifications implements pollcache.NotificationsAPI.
func (b *Backend) UnreadNotifications(ctx context.Context, userID string) (int, error) {
	return b.count(ctx, OpNotifications, userID)
}

// UnreadMessages implements pollcache.NotificationsAPI.
func (b *Backend) UnreadMessages(ctx context.Context, userID string) (int, error) {
	return b.count(ctx, OpMessages, userID)
}

// AdminUnreadNotifications implements pollcache.NotificationsAPI.
func (b *Backend) AdminUnreadNotifications(ctx context.Context, userID string) (int, error) {
	return b.count(ctx, OpAdminNotifications, userID)
}

// GetUser implements pollcache.UserAPI. The returned profile is a copy.
func (b *Backend) GetUser(ctx context.Context, userID string) (*pollcache.Profile, error) {
	if err := b.enter(ctx, OpGetUser, userID); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.users[userID]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

// VerificationStatus implements pollcache.VerificationAPI.
func (b *Backend) VerificationStatus(ctx context.Context, userID string) (*pollcache.VerificationStatus, error) {
	if err := b.enter(ctx, OpVerification, userID); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.verification[userID], nil
}

// Reset clears recorded counts.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies op was called for userID the expected number of times.
func (b *Backend) AssertCalled(t testing.TB, op Op, userID string, times int) {
	t.Helper()
	if got := b.Count(op, userID); got != times {
		t.Fatalf("expected %s for %q called %d times, got %d", op, userID, times, got)
	}
}

// AssertNotCalled ensures op was never called for userID.
func (b *Backend) AssertNotCalled(t testing.TB, op Op, userID string) {
	t.Helper()
	if got := b.Count(op, userID); got != 0 {
		t.Fatalf("expected %s for %q not called, got %d", op, userID, got)
	}
}

// AssertTotal ensures the total call count for op matches times.
func (b *Backend) AssertTotal(t testing.TB, op Op, times int) {
	t.Helper()
	if got := b.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op and userID.
func (b *Backend) Count(op Op, userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[op][userID]
}

// Total returns calls for op across users.
func (b *Backend) Total(op Op) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sum int
	for _, v := range b.counts[op] {
		sum += v
	}
	return sum
}

func (b *Backend) count(ctx context.Context, op Op, userID string) (int, error) {
	if err := b.enter(ctx, op, userID); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ints[op], nil
}

// enter records the call, waits on the gate and returns the configured error.
func (b *Backend) enter(ctx context.Context, op Op, userID string) error {
	b.mu.Lock()
	if b.counts[op] == nil {
		b.counts[op] = make(map[string]int)
	}
	b.counts[op][userID]++
	gate, started := b.gate, b.started
	b.mu.Unlock()

	if gate != nil {
		select {
		case started <- op:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs[op]
}
