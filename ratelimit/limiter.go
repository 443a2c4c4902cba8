package ratelimit

import (
	"context"

	"github.com/mpraski/admission/store"
	"github.com/pkg/errors"
)

type (
	// Limiter runs every algorithm against one store. Decisions on the same
	// key are serialized whichever algorithm makes them.
	Limiter struct {
		store      store.Store
		stripes    int
		middleware []Middleware
		strategies map[Algorithm]Strategy
	}

	Option func(*Limiter)

	Middleware func(Algorithm, Strategy) Strategy
)

func New(s store.Store, opts ...Option) *Limiter {
	l := &Limiter{store: s}

	for _, o := range opts {
		o(l)
	}

	locks := NewKeyLocks(l.stripes)

	l.strategies = map[Algorithm]Strategy{
		FixedWindowAlgorithm:     NewFixedWindowStrategy(s, locks),
		SlidingWindowAlgorithm:   NewSlidingWindowStrategy(s, locks),
		EnforcedAverageAlgorithm: NewEnforcedAverageStrategy(s, locks),
		LeakyBucketAlgorithm:     NewLeakyBucketStrategy(s, locks),
	}

	for a, st := range l.strategies {
		for i := len(l.middleware) - 1; i >= 0; i-- {
			st = l.middleware[i](a, st)
		}

		l.strategies[a] = st
	}

	return l
}

func WithStripes(n int) Option {
	return func(l *Limiter) { l.stripes = n }
}

// WithMiddleware wraps every strategy. The first middleware is the outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(l *Limiter) { l.middleware = append(l.middleware, mw...) }
}

func (l *Limiter) Strategy(a Algorithm) (Strategy, error) {
	s, ok := l.strategies[a]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%q", a)
	}

	return s, nil
}

// Decide admits or denies a request for key at logical time now.
func (l *Limiter) Decide(ctx context.Context, a Algorithm, key string, p Params, now Millis) (Result, error) {
	s, err := l.Strategy(a)
	if err != nil {
		return Result{}, err
	}

	return s.Run(ctx, Request{Key: key, Now: now, Params: p})
}

func (l *Limiter) FixedWindow(ctx context.Context, key string, limit float64, window, now Millis) (Result, error) {
	return l.Decide(ctx, FixedWindowAlgorithm, key, Params{Limit: limit, Window: window}, now)
}

func (l *Limiter) SlidingWindow(ctx context.Context, key string, limit float64, window, now Millis) (Result, error) {
	return l.Decide(ctx, SlidingWindowAlgorithm, key, Params{Limit: limit, Window: window}, now)
}

func (l *Limiter) EnforcedAverage(ctx context.Context, key string, limitRPS float64, now Millis) (Result, error) {
	return l.Decide(ctx, EnforcedAverageAlgorithm, key, Params{Limit: limitRPS}, now)
}

func (l *Limiter) LeakyBucket(ctx context.Context, key string, limit float64, window Millis, mode Mode, now Millis) (Result, error) {
	return l.Decide(ctx, LeakyBucketAlgorithm, key, Params{Limit: limit, Window: window, Mode: mode}, now)
}

// Reset clears the underlying store. It is meant for boundaries between
// experiment runs, not for use alongside concurrent decisions.
func (l *Limiter) Reset(ctx context.Context) error {
	return l.store.Reset(ctx)
}
