package store

import (
	"math"
	"time"
)

// Millis is a logical timestamp or duration in milliseconds. It is supplied by
// the caller on every call and never read from a clock.
type Millis float64

func FromDuration(d time.Duration) Millis {
	return Millis(float64(d) / float64(time.Millisecond))
}

func (m Millis) Duration() time.Duration {
	return time.Duration(float64(m) * float64(time.Millisecond))
}

// Valid reports whether m is a finite, non-negative point in logical time.
func (m Millis) Valid() bool {
	f := float64(m)
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
