package experiment

import (
	"context"
	"fmt"

	"github.com/mpraski/admission/policy"
	"github.com/mpraski/admission/ratelimit"
	"github.com/mpraski/admission/store"
)

type (
	// Experiment decides with Algorithm and Params, or, when Policy is set,
	// with whichever rule Policy matches for Key. Algorithm and Params then
	// hold the rule matched when the experiment was built.
	Experiment struct {
		Name      string
		Key       string
		Algorithm ratelimit.Algorithm
		Params    ratelimit.Params
		Policy    policy.Matcher
	}

	// Sample is one decision of a run: when it was made, its outcome and the
	// metric reported with it.
	Sample struct {
		Time      store.Millis
		State     ratelimit.State
		Metric    float64
		Metered   bool
		NewWindow bool
	}

	Report struct {
		Experiment Experiment
		Samples    []Sample
		Allowed    int
		Denied     int
		PeakMetric float64
	}
)

const DefaultKey = "global"

// Run makes one decision per entry of times, in order, all for e.Key.
func Run(ctx context.Context, s ratelimit.Strategy, e Experiment, times []store.Millis) (Report, error) {
	if e.Key == "" {
		e.Key = DefaultKey
	}

	r := Report{
		Experiment: e,
		Samples:    make([]Sample, 0, len(times)),
	}

	for _, t := range times {
		if err := ctx.Err(); err != nil {
			return r, err
		}

		res, err := s.Run(ctx, ratelimit.Request{Key: e.Key, Now: t, Params: e.Params})
		if err != nil {
			return r, fmt.Errorf("experiment %q failed at %vms: %w", e.Name, float64(t), err)
		}

		r.add(Sample{
			Time:      t,
			State:     res.State,
			Metric:    res.Metric,
			Metered:   res.Metered,
			NewWindow: res.NewWindow,
		})
	}

	return r, nil
}

func (r *Report) add(s Sample) {
	r.Samples = append(r.Samples, s)

	if s.State == ratelimit.Allow {
		r.Allowed++
	} else {
		r.Denied++
	}

	if s.Metered && s.Metric > r.PeakMetric {
		r.PeakMetric = s.Metric
	}
}
