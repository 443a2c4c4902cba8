package ratelimit

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

var (
	ErrEmptyKey         = errors.New("rate limit key is empty")
	ErrInvalidLimit     = errors.New("invalid rate limit")
	ErrInvalidWindow    = errors.New("invalid rate limit window")
	ErrInvalidMode      = errors.New("invalid leaky bucket mode")
	ErrInvalidTime      = errors.New("invalid logical time")
	ErrUnknownAlgorithm = errors.New("unknown rate limit algorithm")
	ErrStateMismatch    = errors.New("unexpected state stored for key")
)

// Validate checks p against what algorithm a needs.
func Validate(a Algorithm, p Params) error {
	switch a {
	case FixedWindowAlgorithm, SlidingWindowAlgorithm:
		return validateWindowed(p)
	case EnforcedAverageAlgorithm:
		return validateLimit(p.Limit)
	case LeakyBucketAlgorithm:
		if err := validateWindowed(p); err != nil {
			return err
		}

		_, err := ParseMode(string(p.Mode))

		return err
	}

	return errors.Wrapf(ErrUnknownAlgorithm, "%q", a)
}

func validateRequest(r Request) error {
	if r.Key == "" {
		return ErrEmptyKey
	}

	if !r.Now.Valid() {
		return errors.Wrapf(ErrInvalidTime, "now=%v", float64(r.Now))
	}

	return nil
}

func validateWindowed(p Params) error {
	if err := validateLimit(p.Limit); err != nil {
		return err
	}

	w := float64(p.Window)
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		return errors.Wrapf(ErrInvalidWindow, "window=%v", w)
	}

	return nil
}

func validateLimit(l float64) error {
	if math.IsNaN(l) || math.IsInf(l, 0) || l <= 0 {
		return errors.Wrapf(ErrInvalidLimit, "limit=%v", l)
	}

	return nil
}

func stateMismatch(key string, v interface{}) error {
	return fmt.Errorf("%w %q: %T", ErrStateMismatch, key, v)
}
