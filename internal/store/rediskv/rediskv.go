package rediskv

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/store"
)

const (
	fieldValue     = "value"
	fieldWrittenAt = "written_at"
)

// Store keeps each entry in a redis hash so value and write time move together.
type Store struct {
	client *redis.Client
	prefix string
}

func New(addr string, password string, db int) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewWithClient(client)
}

func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: "sales:entry:"}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) GetEntry(ctx context.Context, key string) (*domain.CacheEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, err
	}
	value, ok := fields[fieldValue]
	if !ok {
		return nil, store.ErrNotFound
	}

	entry := &domain.CacheEntry{Key: key, Value: []byte(value)}
	if ms, err := strconv.ParseInt(fields[fieldWrittenAt], 10, 64); err == nil {
		entry.WrittenAt = time.UnixMilli(ms).UTC()
	}
	return entry, nil
}

func (s *Store) PutEntry(ctx context.Context, entry domain.CacheEntry) error {
	if entry.Key == "" {
		return store.ErrInvalidEntry
	}
	if entry.WrittenAt.IsZero() {
		entry.WrittenAt = time.Now().UTC()
	}
	return s.client.HSet(ctx, s.prefix+entry.Key,
		fieldValue, entry.Value,
		fieldWrittenAt, strconv.FormatInt(entry.WrittenAt.UnixMilli(), 10),
	).Err()
}

func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.prefix+key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
