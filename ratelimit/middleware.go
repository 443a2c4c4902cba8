package ratelimit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const outcomeError = "ERROR"

// WithMetrics counts decisions by algorithm and outcome and observes their
// latency by algorithm.
func WithMetrics(counter *prometheus.CounterVec, histogram *prometheus.HistogramVec) Middleware {
	return func(a Algorithm, next Strategy) Strategy {
		return StrategyFunc(func(ctx context.Context, r Request) (Result, error) {
			timer := prometheus.NewTimer(histogram.WithLabelValues(string(a)))

			res, err := next.Run(ctx, r)

			timer.ObserveDuration()

			outcome := res.State.String()
			if err != nil {
				outcome = outcomeError
			}

			counter.WithLabelValues(string(a), outcome).Inc()

			return res, err
		})
	}
}

func WithLogging(logger log.FieldLogger) Middleware {
	return func(a Algorithm, next Strategy) Strategy {
		return StrategyFunc(func(ctx context.Context, r Request) (Result, error) {
			res, err := next.Run(ctx, r)

			if err != nil || res.State == Deny {
				entry := logger.WithFields(log.Fields{
					"algorithm": a,
					"key":       r.Key,
					"time":      float64(r.Now),
				})

				switch {
				case err != nil:
					entry.WithError(err).Error("rate limit decision failed")
				case res.Metered:
					entry.WithField("metric", res.Metric).Debug("request denied")
				default:
					entry.Debug("request denied")
				}
			}

			return res, err
		})
	}
}
