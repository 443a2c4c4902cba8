package store

import (
	"context"
)

type (
	Getter interface {
		Get(ctx context.Context, key string, now Millis) (interface{}, bool, error)
	}

	Setter interface {
		Set(ctx context.Context, key string, value interface{}, ttl, now Millis) error
	}

	// Incrementer adds one to an integer value in place. The expiration of the
	// entry is left untouched; non-integer values and missing keys are ignored.
	Incrementer interface {
		Increment(ctx context.Context, key string) error
	}

	Resetter interface {
		Reset(context.Context) error
	}

	// Store is a key/value mapping with passive, lazily evaluated expiration.
	// Entries are only ever removed by Get (once expired) or Reset.
	Store interface {
		Getter
		Setter
		Incrementer
		Resetter
	}
)

// NoTTL marks an entry that never expires. Any ttl <= 0 behaves the same.
const NoTTL Millis = 0
