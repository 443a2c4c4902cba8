package experiment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mpraski/admission/policy"
	"github.com/mpraski/admission/ratelimit"
	"github.com/mpraski/admission/store"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type (
	// StoreFactory provides the store of a single experiment of a batch run.
	StoreFactory func(ctx context.Context, runID uuid.UUID, name string) (store.Store, error)

	Batch struct {
		newStore   StoreFactory
		middleware []ratelimit.Middleware
		logger     log.FieldLogger
	}

	BatchOption func(*Batch)
)

func MemoryStores(context.Context, uuid.UUID, string) (store.Store, error) {
	return store.NewMemoryStore(), nil
}

func NewBatch(newStore StoreFactory, opts ...BatchOption) *Batch {
	b := &Batch{
		newStore: newStore,
		logger:   log.StandardLogger(),
	}

	for _, o := range opts {
		o(b)
	}

	return b
}

func WithMiddleware(mw ...ratelimit.Middleware) BatchOption {
	return func(b *Batch) { b.middleware = append(b.middleware, mw...) }
}

func WithLogger(logger log.FieldLogger) BatchOption {
	return func(b *Batch) { b.logger = logger }
}

// Run runs every experiment over the same times, concurrently, each against
// its own store. Reports are returned in the order of experiments.
func (b *Batch) Run(ctx context.Context, experiments []Experiment, times []store.Millis) ([]Report, error) {
	// stores are namespaced by experiment name
	names := make(map[string]struct{}, len(experiments))

	for i := range experiments {
		if _, ok := names[experiments[i].Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, experiments[i].Name)
		}

		names[experiments[i].Name] = struct{}{}
	}

	var (
		runID     = uuid.New()
		reports   = make([]Report, len(experiments))
		group, gc = errgroup.WithContext(ctx)
	)

	for i := range experiments {
		i := i

		group.Go(func() error {
			r, err := b.run(gc, runID, experiments[i], times)
			if err != nil {
				return err
			}

			reports[i] = r

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s failed: %w", runID, err)
	}

	return reports, nil
}

func (b *Batch) run(ctx context.Context, runID uuid.UUID, e Experiment, times []store.Millis) (Report, error) {
	entry := b.logger.WithFields(log.Fields{
		"run":        runID.String(),
		"experiment": e.Name,
		"algorithm":  e.Algorithm,
	})

	s, err := b.newStore(ctx, runID, e.Name)
	if err != nil {
		return Report{}, fmt.Errorf("failed to create store for experiment %q: %w", e.Name, err)
	}

	defer func() {
		if err := s.Reset(context.Background()); err != nil {
			entry.WithError(err).Warn("failed to reset store")
		}
	}()

	limiter := ratelimit.New(s, ratelimit.WithMiddleware(b.middleware...))

	var strategy ratelimit.Strategy

	if e.Policy != nil {
		strategy = policy.NewLimiter(e.Policy, limiter).Strategy()
	} else if strategy, err = limiter.Strategy(e.Algorithm); err != nil {
		return Report{}, fmt.Errorf("experiment %q: %w", e.Name, err)
	}

	if err := ratelimit.Validate(e.Algorithm, e.Params); err != nil {
		return Report{}, fmt.Errorf("experiment %q: %w", e.Name, err)
	}

	r, err := Run(ctx, strategy, e, times)
	if err != nil {
		return Report{}, err
	}

	entry.WithFields(log.Fields{
		"allowed": r.Allowed,
		"denied":  r.Denied,
	}).Info("experiment finished")

	return r, nil
}
