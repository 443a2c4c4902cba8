package policy

import (
	"context"
	"fmt"

	"github.com/mpraski/admission/ratelimit"
)

// Limiter decides on keys using whichever rule of the table matches them.
type Limiter struct {
	table   Matcher
	limiter *ratelimit.Limiter
}

func NewLimiter(table Matcher, limiter *ratelimit.Limiter) *Limiter {
	return &Limiter{table: table, limiter: limiter}
}

func (l *Limiter) Decide(ctx context.Context, key string, now ratelimit.Millis) (ratelimit.Result, error) {
	r, ok := l.table.Match(key)
	if !ok {
		return ratelimit.Result{}, fmt.Errorf("%w %q", ErrNoPolicy, key)
	}

	return l.limiter.Decide(ctx, r.Algorithm, key, r.Params, now)
}

// Strategy adapts the limiter to a ratelimit.Strategy. The params of each
// request are ignored in favour of the rule matching its key.
func (l *Limiter) Strategy() ratelimit.Strategy {
	return ratelimit.StrategyFunc(func(ctx context.Context, r ratelimit.Request) (ratelimit.Result, error) {
		return l.Decide(ctx, r.Key, r.Now)
	})
}
