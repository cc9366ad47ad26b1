package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"salesanalysis/backend/internal/domain"
	"salesanalysis/backend/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	written_at TIMESTAMPTZ NOT NULL
)`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetEntry(ctx context.Context, key string) (*domain.CacheEntry, error) {
	entry := domain.CacheEntry{Key: key}
	err := s.db.QueryRowContext(ctx, `
		SELECT value, written_at
		FROM cache_entries
		WHERE key = $1
	`, key).Scan(&entry.Value, &entry.WrittenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) PutEntry(ctx context.Context, entry domain.CacheEntry) error {
	if entry.Key == "" {
		return store.ErrInvalidEntry
	}
	if entry.WrittenAt.IsZero() {
		entry.WrittenAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, written_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, written_at = EXCLUDED.written_at
	`, entry.Key, entry.Value, entry.WrittenAt)
	return err
}

func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	return err
}
