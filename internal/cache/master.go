package cache

import (
	"context"
	"sync"
	"time"

	"salesanalysis/backend/internal/domain"
)

// MasterCache holds small master data with a fixed time-to-live, independent
// of the dataset store. Expired entries read as absent.
type MasterCache interface {
	Get(ctx context.Context, key string) (*domain.MasterData, bool, error)
	Set(ctx context.Context, key string, value *domain.MasterData, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryMasterEntry struct {
	value     domain.MasterData
	expiresAt time.Time
}

type MemoryMasterCache struct {
	mu      sync.Mutex
	entries map[string]memoryMasterEntry
	now     func() time.Time
}

func NewMemoryMasterCache(now func() time.Time) *MemoryMasterCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryMasterCache{entries: make(map[string]memoryMasterEntry), now: now}
}

func (c *MemoryMasterCache) Get(_ context.Context, key string) (*domain.MasterData, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	value := cloneMaster(entry.value)
	return &value, true, nil
}

func (c *MemoryMasterCache) Set(_ context.Context, key string, value *domain.MasterData, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryMasterEntry{value: cloneMaster(*value), expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryMasterCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// cloneMaster copies the maps and slices so callers may edit what they read.
func cloneMaster(m domain.MasterData) domain.MasterData {
	out := domain.MasterData{Customers: append([]string(nil), m.Customers...)}
	if m.Departments != nil {
		out.Departments = make(map[string][]string, len(m.Departments))
		for k, v := range m.Departments {
			out.Departments[k] = append([]string(nil), v...)
		}
	}
	if m.Contacts != nil {
		out.Contacts = make(map[string][]string, len(m.Contacts))
		for k, v := range m.Contacts {
			out.Contacts[k] = append([]string(nil), v...)
		}
	}
	return out
}
