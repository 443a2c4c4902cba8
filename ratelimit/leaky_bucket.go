package ratelimit

import (
	"context"
	"fmt"
	"math"

	"github.com/mpraski/admission/store"
)

// LeakyBucket keeps a continuous fill level per key that drains linearly with
// elapsed time, extrapolating the request rate instead of logging requests.
//
// The leak rate is Params.Limit units per window in Soft mode and one unit
// per window in Hard mode. A request is admitted while the drained level plus
// one stays strictly below the limit. The entry expires exactly when the
// level would have drained to zero.
type LeakyBucket struct {
	store store.Store
	locks *KeyLocks
}

var _ Strategy = &LeakyBucket{}

func NewLeakyBucketStrategy(s store.Store, locks *KeyLocks) *LeakyBucket {
	if locks == nil {
		locks = NewKeyLocks(0)
	}

	return &LeakyBucket{store: s, locks: locks}
}

func (b *LeakyBucket) Run(ctx context.Context, r Request) (Result, error) {
	if err := validateRequest(r); err != nil {
		return Result{}, err
	}

	if err := validateWindowed(r.Params); err != nil {
		return Result{}, err
	}

	mode, err := ParseMode(string(r.Params.Mode))
	if err != nil {
		return Result{}, err
	}

	var (
		rate   = leakRate(mode, r.Params.Limit)
		window = float64(r.Params.Window)
	)

	unlock := b.locks.Lock(r.Key)
	defer unlock()

	v, ok, err := b.store.Get(ctx, r.Key, r.Now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read bucket for key %q: %w", r.Key, err)
	}

	if !ok {
		l := Level{Level: 1, UpdatedAt: r.Now}

		if err := b.store.Set(ctx, r.Key, l, Millis(window/rate), r.Now); err != nil {
			return Result{}, fmt.Errorf("failed to create bucket for key %q: %w", r.Key, err)
		}

		return allow(l.Level, true), nil
	}

	l, ok := v.(Level)
	if !ok {
		return Result{}, stateMismatch(r.Key, v)
	}

	decayed := l.drain(r.Now, rate, window)

	if decayed+1 >= r.Params.Limit {
		return deny(decayed), nil
	}

	next := Level{Level: decayed + 1, UpdatedAt: r.Now}
	if next.UpdatedAt < l.UpdatedAt {
		next.UpdatedAt = l.UpdatedAt
	}

	// expiry counts from UpdatedAt, the instant the level is measured at
	if err := b.store.Set(ctx, r.Key, next, Millis(next.Level*window/rate), next.UpdatedAt); err != nil {
		return Result{}, fmt.Errorf("failed to fill bucket for key %q: %w", r.Key, err)
	}

	return allow(next.Level, false), nil
}

// drain returns the level at now, never below zero. Time running backwards
// counts as no time elapsed.
func (l Level) drain(now Millis, rate, window float64) float64 {
	elapsed := float64(now - l.UpdatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	return math.Max(l.Level-elapsed*rate/window, 0)
}

func leakRate(m Mode, limit float64) float64 {
	if m == Hard {
		return 1
	}

	return limit
}
