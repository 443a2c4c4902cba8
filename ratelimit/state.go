package ratelimit

import "github.com/mpraski/admission/store"

type (
	// Timestamps is the request log of the sliding window, oldest first.
	Timestamps []Millis

	// Sentinel marks a key locked out by the enforced average.
	Sentinel struct{}

	// Level is the leaky bucket fill level as of UpdatedAt.
	Level struct {
		Level     float64 `json:"level"`
		UpdatedAt Millis  `json:"updated_at"`
	}
)

func init() {
	store.Register("timestamps", Timestamps(nil))
	store.Register("sentinel", Sentinel{})
	store.Register("level", Level{})
}
