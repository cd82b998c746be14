// Package targetprep holds the target preparers and the limiter that bounds
// how many devices flash at the same time on a host.
package targetprep

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
)

// FlashingLimiter bounds the number of concurrent flashes. A limit of zero or
// less means unlimited, in which case taking and returning permits does
// nothing.
type FlashingLimiter struct {
	limit int
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

func NewFlashingLimiter(limit int) *FlashingLimiter {
	l := &FlashingLimiter{limit: limit}
	if limit > 0 {
		l.sem = semaphore.NewWeighted(int64(limit))
	}
	return l
}

func (l *FlashingLimiter) Limit() int { return l.limit }

func (l *FlashingLimiter) IsUnlimited() bool { return l.sem == nil }

// InUse returns the number of permits currently held.
func (l *FlashingLimiter) InUse() int { return int(l.inUse.Load()) }

// TakePermit blocks until a permit is available or ctx is done.
func (l *FlashingLimiter) TakePermit(ctx context.Context) error {
	if l.sem == nil {
		return nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	metrics.SetFlashingPermitsInUse(int(l.inUse.Add(1)))
	return nil
}

// TryTakePermit takes a permit without blocking.
func (l *FlashingLimiter) TryTakePermit() bool {
	if l.sem == nil {
		return true
	}
	if !l.sem.TryAcquire(1) {
		return false
	}
	metrics.SetFlashingPermitsInUse(int(l.inUse.Add(1)))
	return true
}

func (l *FlashingLimiter) ReturnPermit() {
	if l.sem == nil {
		return
	}
	metrics.SetFlashingPermitsInUse(int(l.inUse.Add(-1)))
	l.sem.Release(1)
}

// WithPermit runs fn while holding a permit. The permit is returned even if
// fn panics.
func (l *FlashingLimiter) WithPermit(ctx context.Context, fn func() error) error {
	if err := l.TakePermit(ctx); err != nil {
		return err
	}
	defer l.ReturnPermit()
	return fn()
}

var (
	sharedMu      sync.Mutex
	sharedLimiter *FlashingLimiter
)

// SharedLimiter returns the process-wide limiter for limit. The limiter is
// replaced when a different limit is requested; permits held on the old one
// stay valid.
func SharedLimiter(limit int) *FlashingLimiter {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedLimiter == nil || sharedLimiter.limit != limit {
		sharedLimiter = NewFlashingLimiter(limit)
	}
	return sharedLimiter
}
