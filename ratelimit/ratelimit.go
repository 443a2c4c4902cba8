package ratelimit

import (
	"context"

	"github.com/mpraski/admission/store"
)

type (
	Strategy interface {
		Run(context.Context, Request) (Result, error)
	}

	StrategyFunc func(context.Context, Request) (Result, error)

	State uint8

	Millis = store.Millis

	Request struct {
		Key    string
		Now    Millis
		Params Params
	}

	// Params is the policy of a single decision. Window is ignored by the
	// enforced average, Mode only matters to the leaky bucket.
	Params struct {
		Limit  float64
		Window Millis
		Mode   Mode
	}

	// Result is produced fresh on every decision. Metric is the number of
	// requests counted in the active window, or the bucket level for the
	// leaky bucket. Metered is false for strategies that only gate.
	Result struct {
		State     State
		Metric    float64
		NewWindow bool
		Metered   bool
	}
)

const (
	Deny State = iota
	Allow
)

var stateStr = []string{"DENIED", "OK"}

func (s State) String() string {
	if int(s) < len(stateStr) {
		return stateStr[s]
	}

	return "UNKNOWN"
}

func (f StrategyFunc) Run(ctx context.Context, r Request) (Result, error) {
	return f(ctx, r)
}

func allow(metric float64, newWindow bool) Result {
	return Result{State: Allow, Metric: metric, NewWindow: newWindow, Metered: true}
}

func deny(metric float64) Result {
	return Result{State: Deny, Metric: metric, Metered: true}
}
