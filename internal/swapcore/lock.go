package swapcore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// hashLocks serializes all mutation of a single payment_hash, per spec.md
// §5: "all mutations of a given payment_hash are serialized by a per-hash
// lock obtained with a bounded timeout; failure to acquire skips that tick."
// Each hash's "mutex" is a capacity-1 channel rather than a sync.Mutex so a
// timed-out acquisition attempt can simply walk away without ever taking
// the lock — grounded on the teacher's sync.Map-keyed state bookkeeping
// idiom (see the example pack's chainadapter in-memory store).
type hashLocks struct {
	locks sync.Map // [32]byte -> chan struct{} (capacity 1, token-holding)
}

func (h *hashLocks) tokenFor(hash [32]byte) chan struct{} {
	ch, _ := h.locks.LoadOrStore(hash, make(chan struct{}, 1))
	return ch.(chan struct{})
}

// ErrLockTimeout is returned when the per-hash lock isn't acquired within
// the configured bound; callers should skip this tick rather than block.
var ErrLockTimeout = fmt.Errorf("swapcore: timed out acquiring per-hash lock")

// withHashLock runs fn while holding paymentHash's lock, bounded by timeout.
// Per spec.md §5, holders of a per-hash lock must never acquire another
// swap's lock (no cross-swap lock acquisition, to avoid deadlock) — fn must
// not call withHashLock again for a different hash.
func (h *hashLocks) withHashLock(ctx context.Context, paymentHash [32]byte, timeout time.Duration, fn func(ctx context.Context) error) error {
	token := h.tokenFor(paymentHash)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case token <- struct{}{}:
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-token }()

	return fn(ctx)
}
