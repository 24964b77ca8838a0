// Package session provides an expiring in-memory key-value store for
// upstream auth sessions. It replaces ambient per-connector session maps
// with a store the orchestrator owns explicitly, so a multi-instance
// deployment can later swap in an external backend behind the same shape.
package session

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is an in-memory TTL map with a background sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	done    chan struct{}
	closed  sync.Once
}

// NewStore creates a Store sweeping expired entries every sweepInterval.
func NewStore(sweepInterval time.Duration) *Store {
	s := &Store{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

// Put stores value under key for ttl. A non-positive ttl is a no-op so
// callers can pass the remaining lifetime of an already-expired token
// without special-casing.
func (s *Store) Put(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
}

// Get returns the live value for key, or false when absent or expired.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Delete removes key from the store.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Close stops the sweep goroutine.
func (s *Store) Close() {
	s.closed.Do(func() { close(s.done) })
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
