package ratelimit

import (
	"context"
	"fmt"

	"github.com/mpraski/admission/store"
)

// EnforcedAverage admits a request only if none was admitted during the
// preceding 1000/limit ms. Params.Limit is read as requests per second.
type EnforcedAverage struct {
	store store.Store
	locks *KeyLocks
}

const second Millis = 1000

var _ Strategy = &EnforcedAverage{}

func NewEnforcedAverageStrategy(s store.Store, locks *KeyLocks) *EnforcedAverage {
	if locks == nil {
		locks = NewKeyLocks(0)
	}

	return &EnforcedAverage{store: s, locks: locks}
}

func (e *EnforcedAverage) Run(ctx context.Context, r Request) (Result, error) {
	if err := validateRequest(r); err != nil {
		return Result{}, err
	}

	if err := validateLimit(r.Params.Limit); err != nil {
		return Result{}, err
	}

	unlock := e.locks.Lock(r.Key)
	defer unlock()

	_, locked, err := e.store.Get(ctx, r.Key, r.Now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read lockout for key %q: %w", r.Key, err)
	}

	if locked {
		return Result{State: Deny}, nil
	}

	exclusion := second / Millis(r.Params.Limit)

	if err := e.store.Set(ctx, r.Key, Sentinel{}, exclusion, r.Now); err != nil {
		return Result{}, fmt.Errorf("failed to lock out key %q: %w", r.Key, err)
	}

	return Result{State: Allow}, nil
}
