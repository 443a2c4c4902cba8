package store

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

type (
	MemoryStore struct {
		mu   sync.Mutex
		data map[string]*entry
	}

	entry struct {
		value     interface{}
		expiresAt Millis
		expires   bool
	}
)

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*entry)}
}

func (e *entry) expired(now Millis) bool {
	return e.expires && e.expiresAt <= now
}

func (s *MemoryStore) Get(_ context.Context, key string, now Millis) (interface{}, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}

	if e.expired(now) {
		delete(s.data, key)
		return nil, false, nil
	}

	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl, now Millis) error {
	e := &entry{value: value}

	if ttl > 0 {
		e.expires = true
		e.expiresAt = now + ttl
	}

	s.mu.Lock()
	s.data[key] = e
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Increment(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil
	}

	v, ok := e.value.(int64)
	if !ok {
		log.WithFields(log.Fields{
			"key":  key,
			"type": typeName(e.value),
		}).Debug("skipped increment of non-integer value")

		return nil
	}

	e.value = v + 1

	return nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.mu.Lock()
	s.data = make(map[string]*entry)
	s.mu.Unlock()

	return nil
}

// Len returns the number of entries held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data)
}
