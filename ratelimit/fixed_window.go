package ratelimit

import (
	"context"
	"fmt"

	"github.com/mpraski/admission/store"
)

// FixedWindow counts requests in a window that opens with the first request
// for a key and closes when the counter entry expires. Denied requests are
// not counted.
type FixedWindow struct {
	store store.Store
	locks *KeyLocks
}

var _ Strategy = &FixedWindow{}

func NewFixedWindowStrategy(s store.Store, locks *KeyLocks) *FixedWindow {
	if locks == nil {
		locks = NewKeyLocks(0)
	}

	return &FixedWindow{store: s, locks: locks}
}

func (f *FixedWindow) Run(ctx context.Context, r Request) (Result, error) {
	if err := validateRequest(r); err != nil {
		return Result{}, err
	}

	if err := validateWindowed(r.Params); err != nil {
		return Result{}, err
	}

	unlock := f.locks.Lock(r.Key)
	defer unlock()

	v, ok, err := f.store.Get(ctx, r.Key, r.Now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read counter for key %q: %w", r.Key, err)
	}

	if !ok {
		if err := f.store.Set(ctx, r.Key, int64(1), r.Params.Window, r.Now); err != nil {
			return Result{}, fmt.Errorf("failed to open window for key %q: %w", r.Key, err)
		}

		return allow(1, true), nil
	}

	c, ok := v.(int64)
	if !ok {
		return Result{}, stateMismatch(r.Key, v)
	}

	if float64(c) >= r.Params.Limit {
		return deny(float64(c)), nil
	}

	// the increment keeps the expiration set by the first request
	if err := f.store.Increment(ctx, r.Key); err != nil {
		return Result{}, fmt.Errorf("failed to increment counter for key %q: %w", r.Key, err)
	}

	return allow(float64(c+1), false), nil
}
