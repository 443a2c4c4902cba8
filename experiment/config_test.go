package experiment

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/mpraski/admission/policy"
	"github.com/mpraski/admission/ratelimit"
	"github.com/mpraski/admission/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	experiments, err := c.Build()
	require.NoError(t, err)
	require.Len(t, experiments, 5)

	for _, e := range experiments {
		assert.Equal(t, DefaultKey, e.Key)
		assert.Equal(t, float64(5), e.Params.Limit)
	}

	assert.Equal(t, ratelimit.Hard, experiments[4].Params.Mode)
	assert.Equal(t, ratelimit.Soft, experiments[3].Params.Mode)

	require.Len(t, c.Timelines, 3)

	times, err := c.Timelines[0].Times(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, times, 30)
}

func TestParseConfig_Empty(t *testing.T) {
	c, err := ParseConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
}

const experimentConfig = `
timelines:
  - pattern: cross_window
    rps: 20
    seconds: 1
experiments:
  - name: burst
    algorithm: sliding_window
    limit: 2
    window: 500ms
  - key: users/42
  - key: anything
policies:
  default:
    algorithm: enforced_average
    limit: 1
  rules:
    - prefix: users
      algorithm: leaky_bucket
      limit: 3
      window: 2s
      mode: hard
`

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig(strings.NewReader(experimentConfig))
	require.NoError(t, err)

	require.Len(t, c.Timelines, 1)
	assert.Equal(t, string(timeline.CrossWindowPattern), c.Timelines[0].Pattern)

	experiments, err := c.Build()
	require.NoError(t, err)
	require.Len(t, experiments, 3)

	assert.Equal(t, Experiment{
		Name:      "burst",
		Key:       DefaultKey,
		Algorithm: ratelimit.SlidingWindowAlgorithm,
		Params:    ratelimit.Params{Limit: 2, Window: 500, Mode: ratelimit.Soft},
	}, experiments[0])

	assert.Nil(t, experiments[0].Policy)

	assert.Equal(t, "leaky_bucket users/42", experiments[1].Name)
	assert.Equal(t, "users/42", experiments[1].Key)
	assert.Equal(t, ratelimit.LeakyBucketAlgorithm, experiments[1].Algorithm)
	assert.Equal(t, ratelimit.Params{Limit: 3, Window: 2000, Mode: ratelimit.Hard}, experiments[1].Params)
	assert.IsType(t, &policy.CachedTable{}, experiments[1].Policy)

	assert.Equal(t, ratelimit.EnforcedAverageAlgorithm, experiments[2].Algorithm)
	assert.Equal(t, float64(1), experiments[2].Params.Limit)
	assert.Same(t, experiments[1].Policy, experiments[2].Policy)

	times, err := c.Timelines[0].Times(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, times)
}

func TestConfig_BuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		config string
		target error
	}{
		{
			name:   "unknown algorithm",
			config: "experiments:\n  - algorithm: token_bucket\n",
			target: ratelimit.ErrUnknownAlgorithm,
		},
		{
			name:   "invalid limit",
			config: "experiments:\n  - algorithm: fixed_window\n    window: 1s\n",
			target: ratelimit.ErrInvalidLimit,
		},
		{
			name:   "missing window",
			config: "experiments:\n  - algorithm: leaky_bucket\n    limit: 2\n",
			target: ratelimit.ErrInvalidWindow,
		},
		{
			name:   "repeated name",
			config: "experiments:\n  - name: a\n    algorithm: enforced_average\n    limit: 1\n  - name: a\n    algorithm: enforced_average\n    limit: 2\n",
			target: ErrDuplicateName,
		},
		{
			name:   "no policies",
			config: "experiments:\n  - key: users\n",
			target: ErrNoPolicies,
		},
		{
			name:   "no matching policy",
			config: "experiments:\n  - key: orders\npolicies:\n  rules:\n    - prefix: users\n      algorithm: enforced_average\n      limit: 1\n",
			target: policy.ErrNoPolicy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseConfig(strings.NewReader(tt.config))
			require.NoError(t, err)

			_, err = c.Build()
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestParseConfig_Malformed(t *testing.T) {
	_, err := ParseConfig(strings.NewReader("experiments: [\n"))
	assert.Error(t, err)
}

func TestConfig_BuildNamesUnnamedExperimentsUniquely(t *testing.T) {
	const config = `
experiments:
  - algorithm: leaky_bucket
    limit: 5
    window: 1s
    mode: soft
  - algorithm: leaky_bucket
    limit: 5
    window: 1s
    mode: hard
  - name: "leaky_bucket global #2"
    algorithm: fixed_window
    limit: 1
    window: 1s
`

	c, err := ParseConfig(strings.NewReader(config))
	require.NoError(t, err)

	_, err = c.Build()
	assert.ErrorIs(t, err, ErrDuplicateName)

	c.Experiments = c.Experiments[:2]

	experiments, err := c.Build()
	require.NoError(t, err)
	require.Len(t, experiments, 2)

	assert.Equal(t, "leaky_bucket global", experiments[0].Name)
	assert.Equal(t, "leaky_bucket global #2", experiments[1].Name)
}
