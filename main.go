package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"github.com/mpraski/admission/experiment"
	"github.com/mpraski/admission/ratelimit"
	"github.com/mpraski/admission/server"
	"github.com/mpraski/admission/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

type input struct {
	// Config is a path to a YAML experiment file. Without one the built-in
	// experiments run.
	Config   string
	LogLevel string `split_words:"true" default:"warn"`
	Samples  bool   `default:"false"`
	Seed     int64  `default:"1"`
	Store    struct {
		Backend string `default:"memory"`
		Redis   struct {
			Host     string        `default:"localhost"`
			Port     int           `default:"6379"`
			Password string        `default:""`
			DB       int           `default:"0"`
			Timeout  time.Duration `default:"5s"`
		}
	}
	Observability struct {
		// Address of the /healthz and /metrics server. Empty disables it.
		Address         string        `default:""`
		ReadTimeout     time.Duration `split_words:"true" default:"5s"`
		WriteTimeout    time.Duration `split_words:"true" default:"10s"`
		IdleTimeout     time.Duration `split_words:"true" default:"15s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

const (
	app     = "admission"
	version = "0.1.0"
)

// newMetrics registers the decision metrics, plus the Go runtime and process
// collectors, with registry.
func newMetrics(registry *prometheus.Registry) (*prometheus.CounterVec, *prometheus.HistogramVec) {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	total := factory.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_decisions_total",
		Help: "The total number of rate limit decisions",
	}, []string{"algorithm", "state"})

	duration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admission_decisions_duration_seconds",
		Help:    "The histogram of rate limit decision duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"algorithm"})

	return total, duration
}

func init() {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.WarnLevel)
}

func main() {
	var i input
	if err := envconfig.Process(app, &i); err != nil {
		log.Fatalf("failed to load input: %v\n", err)
	}

	level, err := log.ParseLevel(i.LogLevel)
	if err != nil {
		log.Fatalf("failed to parse log level: %v\n", err)
	}

	log.SetLevel(level)

	config, err := loadConfig(i.Config)
	if err != nil {
		log.Fatalf("failed to load experiments: %v\n", err)
	}

	experiments, err := config.Build()
	if err != nil {
		log.Fatalf("failed to initialize experiments: %v\n", err)
	}

	factory, pingers, err := newStoreFactory(&i)
	if err != nil {
		log.Fatalf("failed to initialize store: %v\n", err)
	}

	var (
		quit        = make(chan os.Signal, 1)
		ctx, cancel = context.WithCancel(context.Background())
	)

	defer cancel()

	signal.Notify(quit, os.Interrupt)

	go func() {
		<-quit
		log.Println("interrupted, stopping experiments...")
		cancel()
	}()

	var (
		registry                          = prometheus.NewRegistry()
		decisionsTotal, decisionsDuration = newMetrics(registry)
		observability                     *server.Server
	)

	if i.Observability.Address != "" {
		healthz, err := server.NewHealth(app, version, pingers)
		if err != nil {
			log.Fatalf("failed to initialize health checks: %v\n", err)
		}

		observability = server.NewObservability(server.Config{
			Address:         i.Observability.Address,
			ReadTimeout:     i.Observability.ReadTimeout,
			WriteTimeout:    i.Observability.WriteTimeout,
			IdleTimeout:     i.Observability.IdleTimeout,
			ShutdownTimeout: i.Observability.ShutdownTimeout,
		}, healthz, registry)

		go func() {
			log.Println("starting observability server at", i.Observability.Address)

			if err := observability.ListenAndServe(); err != nil {
				log.Fatalf("failed to start observability server: %v\n", err)
			}
		}()
	}

	batch := experiment.NewBatch(factory, experiment.WithMiddleware(
		ratelimit.WithMetrics(decisionsTotal, decisionsDuration),
		ratelimit.WithLogging(log.StandardLogger()),
	))

	rng := rand.New(rand.NewSource(i.Seed))

	if err := runTimelines(ctx, os.Stdout, batch, config.Timelines, experiments, rng, i.Samples); err != nil {
		log.Fatalf("failed to run experiments: %v\n", err)
	}

	if observability == nil {
		return
	}

	if ctx.Err() == nil {
		log.Println("experiments finished, serving metrics until interrupted")
		<-ctx.Done()
	}

	if err := observability.Shutdown(); err != nil {
		log.Fatalf("failed to stop observability server: %v\n", err)
	}

	log.Println("observability server stopped")
}

// runTimelines runs every experiment over each timeline and writes the
// results to w. Cancelling ctx stops the run early without an error.
func runTimelines(
	ctx context.Context,
	w io.Writer,
	batch *experiment.Batch,
	timelines []experiment.TimelineConfig,
	experiments []experiment.Experiment,
	rng *rand.Rand,
	samples bool,
) error {
	for n := range timelines {
		tc := &timelines[n]

		times, err := tc.Times(rng)
		if err != nil {
			return fmt.Errorf("failed to generate %s timeline: %w", tc.Pattern, err)
		}

		reports, err := batch.Run(ctx, experiments, times)
		if errors.Is(err, context.Canceled) {
			log.Println("experiments stopped")
			return nil
		}

		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s timeline, %v rps over %vs\n", tc.Pattern, tc.RPS, tc.Seconds)

		if err := experiment.WriteTable(w, reports, samples); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}

		fmt.Fprintln(w)
	}

	return nil
}

func loadConfig(path string) (experiment.Config, error) {
	if path == "" {
		return experiment.DefaultConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return experiment.Config{}, fmt.Errorf("failed to open %s: %w", path, err)
	}

	defer f.Close()

	return experiment.ParseConfig(f)
}

func newStoreFactory(i *input) (experiment.StoreFactory, map[string]server.Pinger, error) {
	switch i.Store.Backend {
	case "memory":
		return experiment.MemoryStores, nil, nil
	case "redis":
		var (
			client = store.NewRedisClient(store.RedisConfig{
				Host:     i.Store.Redis.Host,
				Port:     i.Store.Redis.Port,
				Password: i.Store.Redis.Password,
				DB:       i.Store.Redis.DB,
			})
			timeout = i.Store.Redis.Timeout
			pinger  = store.NewRedisStore(client, store.WithTimeout(timeout))
		)

		factory := func(_ context.Context, runID uuid.UUID, name string) (store.Store, error) {
			prefix := fmt.Sprintf("%s:%s:%s:", app, runID, name)
			return store.NewRedisStore(client, store.WithPrefix(prefix), store.WithTimeout(timeout)), nil
		}

		return factory, map[string]server.Pinger{"redis": pinger}, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", i.Store.Backend)
}
