package experiment

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/mpraski/admission/policy"
	"github.com/mpraski/admission/ratelimit"
	"github.com/mpraski/admission/store"
	"github.com/mpraski/admission/timeline"
	"gopkg.in/yaml.v2"
)

type (
	// Config describes the timelines to generate and the experiments to run
	// over each of them. Experiments without an algorithm take the rule of the
	// policy matching their key.
	Config struct {
		Timelines   []TimelineConfig   `yaml:"timelines,flow"`
		Experiments []ExperimentConfig `yaml:"experiments,flow"`
		Policies    *policy.Config     `yaml:"policies"`
	}

	TimelineConfig struct {
		Pattern string  `yaml:"pattern"`
		RPS     float64 `yaml:"rps"`
		Seconds float64 `yaml:"seconds"`
	}

	ExperimentConfig struct {
		Name      string        `yaml:"name"`
		Key       string        `yaml:"key"`
		Algorithm string        `yaml:"algorithm"`
		Limit     float64       `yaml:"limit"`
		Window    time.Duration `yaml:"window"`
		Mode      string        `yaml:"mode"`
	}
)

const (
	defaultRPS     = 10
	defaultSeconds = 3
	defaultLimit   = 5
	defaultWindow  = time.Second
	ruleCacheSize  = 1024
)

var (
	ErrNoPolicies    = errors.New("experiment has no algorithm and no policies are configured")
	ErrDuplicateName = errors.New("experiment name is not unique")
)

// DefaultConfig compares every algorithm at 5 requests per 1s window against
// 10 requests per second over 3 seconds, for each timeline pattern.
func DefaultConfig() Config {
	return Config{
		Timelines:   defaultTimelines(),
		Experiments: defaultExperiments(),
	}
}

func defaultTimelines() []TimelineConfig {
	return []TimelineConfig{
		{Pattern: string(timeline.UniformPattern), RPS: defaultRPS, Seconds: defaultSeconds},
		{Pattern: string(timeline.RandomPattern), RPS: defaultRPS, Seconds: defaultSeconds},
		{Pattern: string(timeline.CrossWindowPattern), RPS: defaultRPS, Seconds: defaultSeconds},
	}
}

func defaultExperiments() []ExperimentConfig {
	return []ExperimentConfig{
		{Name: "Fixed window", Algorithm: string(ratelimit.FixedWindowAlgorithm), Limit: defaultLimit, Window: defaultWindow},
		{Name: "Sliding window", Algorithm: string(ratelimit.SlidingWindowAlgorithm), Limit: defaultLimit, Window: defaultWindow},
		{Name: "Enforced average", Algorithm: string(ratelimit.EnforcedAverageAlgorithm), Limit: defaultLimit},
		{Name: "Leaky bucket (soft)", Algorithm: string(ratelimit.LeakyBucketAlgorithm), Limit: defaultLimit, Window: defaultWindow, Mode: string(ratelimit.Soft)},
		{Name: "Leaky bucket (hard)", Algorithm: string(ratelimit.LeakyBucketAlgorithm), Limit: defaultLimit, Window: defaultWindow, Mode: string(ratelimit.Hard)},
	}
}

// ParseConfig decodes a YAML experiment file. Missing sections take their
// defaults.
func ParseConfig(configDataSource io.Reader) (Config, error) {
	var c Config
	if err := yaml.NewDecoder(configDataSource).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode experiment config: %w", err)
	}

	if len(c.Timelines) == 0 {
		c.Timelines = defaultTimelines()
	}

	if len(c.Experiments) == 0 {
		c.Experiments = defaultExperiments()
	}

	return c, nil
}

// Build resolves every configured experiment into runnable form.
func (c *Config) Build() ([]Experiment, error) {
	var table policy.Matcher

	if c.Policies != nil {
		t, err := policy.NewTable(*c.Policies)
		if err != nil {
			return nil, fmt.Errorf("failed to build policy table: %w", err)
		}

		if table, err = policy.NewCachedTable(t, ruleCacheSize); err != nil {
			return nil, err
		}
	}

	experiments := make([]Experiment, 0, len(c.Experiments))

	for i := range c.Experiments {
		e, err := c.Experiments[i].build(table)
		if err != nil {
			return nil, fmt.Errorf("experiment %d is invalid: %w", i, err)
		}

		experiments = append(experiments, e)
	}

	if err := c.nameExperiments(experiments); err != nil {
		return nil, err
	}

	return experiments, nil
}

// nameExperiments rejects repeated explicit names and numbers the generated
// ones that would otherwise repeat.
func (c *Config) nameExperiments(experiments []Experiment) error {
	taken := make(map[string]struct{}, len(experiments))

	for i := range c.Experiments {
		n := c.Experiments[i].Name
		if n == "" {
			continue
		}

		if _, ok := taken[n]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, n)
		}

		taken[n] = struct{}{}
	}

	for i := range experiments {
		if c.Experiments[i].Name != "" {
			continue
		}

		n := fmt.Sprintf("%s %s", experiments[i].Algorithm, experiments[i].Key)
		if _, ok := taken[n]; ok {
			n = fmt.Sprintf("%s #%d", n, i+1)
		}

		if _, ok := taken[n]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, n)
		}

		taken[n] = struct{}{}
		experiments[i].Name = n
	}

	return nil
}

func (ec *ExperimentConfig) build(table policy.Matcher) (Experiment, error) {
	e := Experiment{Name: ec.Name, Key: ec.Key}
	if e.Key == "" {
		e.Key = DefaultKey
	}

	if ec.Algorithm == "" {
		if table == nil {
			return Experiment{}, ErrNoPolicies
		}

		r, ok := table.Match(e.Key)
		if !ok {
			return Experiment{}, fmt.Errorf("%w %q", policy.ErrNoPolicy, e.Key)
		}

		e.Algorithm, e.Params, e.Policy = r.Algorithm, r.Params, table
	} else {
		a, err := ratelimit.ParseAlgorithm(ec.Algorithm)
		if err != nil {
			return Experiment{}, err
		}

		m, err := ratelimit.ParseMode(ec.Mode)
		if err != nil {
			return Experiment{}, err
		}

		e.Algorithm = a
		e.Params = ratelimit.Params{
			Limit:  ec.Limit,
			Window: store.FromDuration(ec.Window),
			Mode:   m,
		}
	}

	if err := ratelimit.Validate(e.Algorithm, e.Params); err != nil {
		return Experiment{}, err
	}

	return e, nil
}

// Times generates the request times of the timeline.
func (tc *TimelineConfig) Times(rng *rand.Rand) ([]store.Millis, error) {
	p, err := timeline.ParsePattern(tc.Pattern)
	if err != nil {
		return nil, err
	}

	return timeline.Generate(p, rng, tc.RPS, tc.Seconds)
}
