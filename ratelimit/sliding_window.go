package ratelimit

import (
	"context"
	"fmt"

	"github.com/mpraski/admission/store"
)

// SlidingWindow keeps the log of admitted request times and counts those
// within the trailing window.
type SlidingWindow struct {
	store store.Store
	locks *KeyLocks
}

var _ Strategy = &SlidingWindow{}

func NewSlidingWindowStrategy(s store.Store, locks *KeyLocks) *SlidingWindow {
	if locks == nil {
		locks = NewKeyLocks(0)
	}

	return &SlidingWindow{store: s, locks: locks}
}

func (s *SlidingWindow) Run(ctx context.Context, r Request) (Result, error) {
	if err := validateRequest(r); err != nil {
		return Result{}, err
	}

	if err := validateWindowed(r.Params); err != nil {
		return Result{}, err
	}

	unlock := s.locks.Lock(r.Key)
	defer unlock()

	v, found, err := s.store.Get(ctx, r.Key, r.Now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read request log for key %q: %w", r.Key, err)
	}

	var times Timestamps

	if found {
		var ok bool
		if times, ok = v.(Timestamps); !ok {
			return Result{}, stateMismatch(r.Key, v)
		}
	}

	// the stored log is shared with the store, build a new one
	kept := make(Timestamps, 0, len(times)+1)

	for _, t := range times {
		if r.Now-t < r.Params.Window {
			kept = append(kept, t)
		}
	}

	if float64(len(kept)) < r.Params.Limit {
		kept = append(kept, r.Now)

		if err := s.store.Set(ctx, r.Key, kept, r.Params.Window, r.Now); err != nil {
			return Result{}, fmt.Errorf("failed to append to request log for key %q: %w", r.Key, err)
		}

		return allow(float64(len(kept)), !found), nil
	}

	// Denials still write back the trimmed log and re-arm its expiry, so the
	// key lives one window past the last attempted request.
	if err := s.store.Set(ctx, r.Key, kept, r.Params.Window, r.Now); err != nil {
		return Result{}, fmt.Errorf("failed to trim request log for key %q: %w", r.Key, err)
	}

	return deny(float64(len(kept))), nil
}
