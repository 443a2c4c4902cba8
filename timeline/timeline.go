// Package timeline generates the logical request times fed to rate limiters
// in experiments.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/mpraski/admission/store"
)

type Pattern string

const (
	UniformPattern     Pattern = "uniform"
	RandomPattern      Pattern = "random"
	CrossWindowPattern Pattern = "cross_window"
)

// The cross-window pattern leaves this gap in its first second, so the
// requests straddle the end of a window that opened at the first request.
const (
	gapStart store.Millis = 200
	gapEnd   store.Millis = 700
)

var (
	ErrInvalidRate     = errors.New("invalid request rate")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrUnknownPattern  = errors.New("unknown timeline pattern")
)

func ParsePattern(name string) (Pattern, error) {
	switch p := Pattern(strings.ToLower(strings.TrimSpace(name))); p {
	case UniformPattern, RandomPattern, CrossWindowPattern:
		return p, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownPattern, name)
}

// Generate returns the times of pattern at rps requests per second over
// seconds. rng is only used by RandomPattern.
func Generate(p Pattern, rng *rand.Rand, rps, seconds float64) ([]store.Millis, error) {
	switch p {
	case UniformPattern:
		return Uniform(rps, seconds)
	case RandomPattern:
		return Random(rng, rps, seconds)
	case CrossWindowPattern:
		return CrossWindow(rps, seconds)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, p)
}

// Uniform spaces requests 1000/rps ms apart, the first one a full interval
// after zero.
func Uniform(rps, seconds float64) ([]store.Millis, error) {
	if err := validate(rps, seconds); err != nil {
		return nil, err
	}

	var (
		n        = int(rps * seconds)
		interval = 1000 / rps
		times    = make([]store.Millis, n)
	)

	for i := range times {
		times[i] = store.Millis(float64(i+1) * interval)
	}

	return times, nil
}

// Random draws int(rps*seconds) times uniformly from [0, seconds*1000) and
// sorts them.
func Random(rng *rand.Rand, rps, seconds float64) ([]store.Millis, error) {
	if err := validate(rps, seconds); err != nil {
		return nil, err
	}

	var (
		n     = int(rps * seconds)
		span  = seconds * 1000
		times = make([]store.Millis, n)
	)

	for i := range times {
		times[i] = store.Millis(rng.Float64() * span)
	}

	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	return times, nil
}

// CrossWindow is Uniform without the times in [200, 700] ms.
func CrossWindow(rps, seconds float64) ([]store.Millis, error) {
	times, err := Uniform(rps, seconds)
	if err != nil {
		return nil, err
	}

	kept := times[:0]

	for _, t := range times {
		if t < gapStart || t > gapEnd {
			kept = append(kept, t)
		}
	}

	return kept, nil
}

func validate(rps, seconds float64) error {
	if math.IsNaN(rps) || math.IsInf(rps, 0) || rps <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rps)
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, seconds)
	}

	return nil
}
