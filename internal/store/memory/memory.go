package memory

import (
	"context"
	"sync"
	"time"

	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/store"
)

// Store keeps entries in process memory. With a positive quota the sum of
// stored value sizes may not exceed quotaBytes, mirroring a browser's
// quota-limited key/value storage.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]domain.CacheEntry
	quotaBytes int
	usedBytes  int
	now        func() time.Time
}

func New(quotaBytes int) *Store {
	if quotaBytes < 0 {
		quotaBytes = 0
	}
	return &Store{
		entries:    make(map[string]domain.CacheEntry),
		quotaBytes: quotaBytes,
		now:        time.Now,
	}
}

func (s *Store) GetEntry(_ context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	entry.Value = append([]byte(nil), entry.Value...)
	return &entry, nil
}

func (s *Store) PutEntry(_ context.Context, entry domain.CacheEntry) error {
	if entry.Key == "" {
		return store.ErrInvalidEntry
	}
	if entry.WrittenAt.IsZero() {
		entry.WrittenAt = s.now().UTC()
	}
	entry.Value = append([]byte(nil), entry.Value...)

	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.usedBytes
	if existing, ok := s.entries[entry.Key]; ok {
		used -= len(existing.Value)
	}
	used += len(entry.Value)
	if s.quotaBytes > 0 && used > s.quotaBytes {
		return store.ErrQuotaExceeded
	}

	s.entries[entry.Key] = entry
	s.usedBytes = used
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if !ok {
		return nil
	}
	s.usedBytes -= len(existing.Value)
	delete(s.entries, key)
	return nil
}

func (s *Store) UsedBytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedBytes
}
