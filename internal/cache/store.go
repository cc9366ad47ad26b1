package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/store"
)

// Store is the persistent cache in front of a quota-limited small backend and
// a larger durable backend. It never returns errors: every failure is logged and
// reported as a miss or as false.
type Store struct {
	small  store.Repository
	large  store.Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(small store.Repository, large store.Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		small:  small,
		large:  large,
		logger: logger.With(zap.String("component", "cache")),
		now:    time.Now,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, ok := s.GetEntry(ctx, key)
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

func (s *Store) GetEntry(ctx context.Context, key string) (*domain.CacheEntry, bool) {
	for i, backend := range s.backends() {
		entry, err := backend.GetEntry(ctx, key)
		if err == nil {
			if i > 0 {
				// warm the fast tier after a restart; a quota miss is fine
				_ = s.small.PutEntry(ctx, *entry)
			}
			return entry, true
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil, false
}

// Set writes through to the large backend, which holds the durable copy, and
// keeps the small backend as the fast tier. A small copy that cannot be
// refreshed is dropped so reads never serve an older generation. Set reports
// whether any backend now holds the value.
func (s *Store) Set(ctx context.Context, key string, value []byte) bool {
	entry := domain.CacheEntry{Key: key, Value: value, WrittenAt: s.now().UTC()}

	durable := false
	if s.large != nil {
		if err := s.large.PutEntry(ctx, entry); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", key), zap.String("tier", "large"), zap.Int("bytes", len(value)), zap.Error(err))
			s.drop(ctx, s.large, key)
		} else {
			durable = true
		}
	}

	if s.small == nil {
		return durable
	}
	err := s.small.PutEntry(ctx, entry)
	if err == nil {
		return true
	}
	if !errors.Is(err, store.ErrQuotaExceeded) || !durable {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.String("tier", "small"), zap.Int("bytes", len(value)), zap.Error(err))
	}
	s.drop(ctx, s.small, key)
	return durable
}

func (s *Store) drop(ctx context.Context, backend store.Repository, key string) {
	if err := backend.DeleteEntry(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("cache cleanup failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) Delete(ctx context.Context, key string) bool {
	ok := true
	for _, backend := range s.backends() {
		if err := backend.DeleteEntry(ctx, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
			ok = false
		}
	}
	return ok
}

func (s *Store) GetJSON(ctx context.Context, key string, dest any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.logger.Warn("cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) SetJSON(ctx context.Context, key string, value any) bool {
	payload, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return s.Set(ctx, key, payload)
}

type stampedEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// SetStamped stores value together with the current time in unix
// milliseconds, for reads through GetFresh.
func (s *Store) SetStamped(ctx context.Context, key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return s.SetJSON(ctx, key, stampedEntry{Data: data, Timestamp: s.now().UnixMilli()})
}

// GetFresh decodes a stamped entry into dest when it is at most maxAge old.
// An expired entry is deleted and reads as a miss.
func (s *Store) GetFresh(ctx context.Context, key string, maxAge time.Duration, dest any) bool {
	var entry stampedEntry
	if !s.GetJSON(ctx, key, &entry) {
		return false
	}
	if s.now().Sub(time.UnixMilli(entry.Timestamp)) > maxAge {
		s.Delete(ctx, key)
		return false
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		s.logger.Warn("cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SaveSnapshot writes a data entry and then its companion timestamp entry.
// The timestamp is only written when the data write succeeded.
func (s *Store) SaveSnapshot(ctx context.Context, dataKey string, timestampKey string, value any, at time.Time) bool {
	if !s.SetJSON(ctx, dataKey, value) {
		return false
	}
	return s.Set(ctx, timestampKey, []byte(strconv.FormatInt(at.UnixMilli(), 10)))
}

func (s *Store) Timestamp(ctx context.Context, timestampKey string) (time.Time, bool) {
	raw, ok := s.Get(ctx, timestampKey)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		s.logger.Warn("cache timestamp is corrupt", zap.String("key", timestampKey), zap.Error(err))
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func (s *Store) backends() []store.Repository {
	backends := make([]store.Repository, 0, 2)
	if s.small != nil {
		backends = append(backends, s.small)
	}
	if s.large != nil {
		backends = append(backends, s.large)
	}
	return backends
}
