package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LocalStore implements Store in process memory. This is suitable for
// single-instance deployments and tests. Expired entries are dropped
// lazily on read.
type LocalStore struct {
	mu      sync.RWMutex
	entries map[string]localEntry
}

type localEntry struct {
	rec       Record
	expiresAt time.Time
}

// NewLocalStore creates a new in-process memory store.
func NewLocalStore() *LocalStore {
	return &LocalStore{entries: make(map[string]localEntry)}
}

// Get retrieves a record, dropping it if expired.
func (s *LocalStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, nil
	}

	rec := entry.rec
	return &rec, nil
}

// Put stores a record with the given TTL.
func (s *LocalStore) Put(_ context.Context, key string, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = localEntry{rec: *rec, expiresAt: time.Now().Add(ttl)}
	return nil
}

// List returns the non-expired keys matching the given prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key, entry := range s.entries {
		if strings.HasPrefix(key, prefix) && now.Before(entry.expiresAt) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Delete removes a record.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}
