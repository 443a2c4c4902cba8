package ratelimit

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// KeyLocks serializes the read-decide-write cycle of decisions on the same
// key. Keys are spread over a fixed set of mutexes, so unrelated keys may
// occasionally share one.
type KeyLocks struct {
	stripes []sync.Mutex
}

const defaultStripes = 256

func NewKeyLocks(stripes int) *KeyLocks {
	if stripes <= 0 {
		stripes = defaultStripes
	}

	return &KeyLocks{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the mutex guarding key and returns its release func.
func (l *KeyLocks) Lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)%uint64(len(l.stripes))]
	m.Lock()

	return m.Unlock
}
