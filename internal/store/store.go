package store

import (
	"context"
	"errors"

	"salesanalysis/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrInvalidEntry  = errors.New("invalid cache entry")
)

// Repository persists timestamped cache entries under string keys.
type Repository interface {
	GetEntry(ctx context.Context, key string) (*domain.CacheEntry, error)
	PutEntry(ctx context.Context, entry domain.CacheEntry) error
	DeleteEntry(ctx context.Context, key string) error
}
