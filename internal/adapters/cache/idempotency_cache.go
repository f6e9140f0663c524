// Package cache adds a Redis read-through layer in front of the engine's
// idempotency-key lookup, grounded on rebound's redisstore adapter (a
// secondary port backed by a single *redis.Client, JSON-encoded payloads).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ficmart/txengine/internal/config"
	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TransactionStore decorates a ports.TransactionStore with a Redis
// read-through cache keyed on idempotency key, the lookup begin() performs
// on every request. Create populates the entry; Update invalidates it rather
// than rewriting it, so a status transition never leaves a stale entry
// hanging around for its TTL.
type TransactionStore struct {
	inner ports.TransactionStore
	rdb   *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

// NewTransactionStore wraps inner with a Redis cache. cfg.Addr is assumed
// non-empty; callers decide whether to wire this decorator in at all based
// on that field.
func NewTransactionStore(inner ports.TransactionStore, cfg config.RedisConfig, log *slog.Logger) *TransactionStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &TransactionStore{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With("component", "cache.transaction_store"),
	}
}

func idempotencyCacheKey(key string) string {
	return "txengine:idemp:" + key
}

func (s *TransactionStore) Create(ctx context.Context, tx *domain.Transaction) error {
	if err := s.inner.Create(ctx, tx); err != nil {
		return err
	}
	s.populate(ctx, tx)
	return nil
}

func (s *TransactionStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.inner.FindByID(ctx, id)
}

// FindByIdempotencyKey checks Redis first. A cache miss or decode failure
// falls through to inner and repopulates the cache; a Redis outage is
// swallowed and treated the same as a miss, since the Postgres lookup
// remains the source of truth.
func (s *TransactionStore) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	if tx, ok := s.get(ctx, key); ok {
		return tx, nil
	}

	tx, err := s.inner.FindByIdempotencyKey(ctx, key)
	if err != nil || tx == nil {
		return tx, err
	}
	s.populate(ctx, tx)
	return tx, nil
}

func (s *TransactionStore) FindByCustomerID(ctx context.Context, customerID string, filter domain.QueryFilter) ([]*domain.Transaction, error) {
	return s.inner.FindByCustomerID(ctx, customerID, filter)
}

// Update invalidates the cached entry rather than rewriting it: the next
// FindByIdempotencyKey repopulates from Postgres with the fresh status.
func (s *TransactionStore) Update(ctx context.Context, tx *domain.Transaction) error {
	if err := s.inner.Update(ctx, tx); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, idempotencyCacheKey(tx.IdempotencyKey)).Err(); err != nil {
		s.log.Warn("failed to invalidate cached transaction", "idempotency_key", tx.IdempotencyKey, "error", err)
	}
	return nil
}

func (s *TransactionStore) FindStale(ctx context.Context, statuses []domain.TransactionStatus, olderThan time.Duration, limit int) ([]*domain.Transaction, error) {
	return s.inner.FindStale(ctx, statuses, olderThan, limit)
}

func (s *TransactionStore) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	return s.inner.FindDueRetries(ctx, now, limit)
}

func (s *TransactionStore) get(ctx context.Context, key string) (*domain.Transaction, bool) {
	raw, err := s.rdb.Get(ctx, idempotencyCacheKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("redis get failed, falling back to store", "idempotency_key", key, "error", err)
		}
		return nil, false
	}

	var tx domain.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		s.log.Warn("failed to decode cached transaction", "idempotency_key", key, "error", err)
		return nil, false
	}
	return &tx, true
}

func (s *TransactionStore) populate(ctx context.Context, tx *domain.Transaction) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, idempotencyCacheKey(tx.IdempotencyKey), raw, s.ttl).Err(); err != nil {
		s.log.Warn("failed to populate cache", "idempotency_key", tx.IdempotencyKey, "error", err)
	}
}

// Close releases the underlying Redis client connection.
func (s *TransactionStore) Close() error {
	return s.rdb.Close()
}
