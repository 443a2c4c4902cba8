package ratelimit

import (
	"strings"

	"github.com/pkg/errors"
)

type (
	Algorithm string

	// Mode selects the leak rate of the leaky bucket: Soft drains up to
	// limit units per window, Hard drains exactly one unit per window.
	Mode string
)

const (
	FixedWindowAlgorithm     Algorithm = "fixed_window"
	SlidingWindowAlgorithm   Algorithm = "sliding_window"
	EnforcedAverageAlgorithm Algorithm = "enforced_average"
	LeakyBucketAlgorithm     Algorithm = "leaky_bucket"

	Soft Mode = "soft"
	Hard Mode = "hard"
)

var (
	Algorithms = []Algorithm{
		FixedWindowAlgorithm,
		SlidingWindowAlgorithm,
		EnforcedAverageAlgorithm,
		LeakyBucketAlgorithm,
	}

	algorithmAliases = map[string]Algorithm{
		"discrete_window":      FixedWindowAlgorithm,
		"exclusion_window":     EnforcedAverageAlgorithm,
		"enforced_avg":         EnforcedAverageAlgorithm,
		"extrapolating_window": LeakyBucketAlgorithm,
	}
)

func ParseAlgorithm(name string) (Algorithm, error) {
	n := strings.ToLower(strings.TrimSpace(name))

	for _, a := range Algorithms {
		if string(a) == n {
			return a, nil
		}
	}

	if a, ok := algorithmAliases[n]; ok {
		return a, nil
	}

	return "", errors.Wrapf(ErrUnknownAlgorithm, "%q", name)
}

// ParseMode accepts an empty name as Soft.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(name))); m {
	case "", Soft:
		return Soft, nil
	case Hard:
		return Hard, nil
	}

	return "", errors.Wrapf(ErrInvalidMode, "%q", name)
}
