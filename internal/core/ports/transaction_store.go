// Package ports defines the boundaries the core services depend on:
// durable storage, the payment network, and the customer-limits collaborator.
// Every interface here has exactly one production adapter under
// internal/adapters and one in-memory fake under internal/core/service for
// unit tests, mirroring the teacher's ports/adapters split.
package ports

import (
	"context"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/google/uuid"
)

// TransactionStore is durable CRUD plus the idempotency-key lookup that makes
// begin() replay-safe (spec §2 TransactionStore).
type TransactionStore interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
	FindByCustomerID(ctx context.Context, customerID string, filter domain.QueryFilter) ([]*domain.Transaction, error)
	Update(ctx context.Context, tx *domain.Transaction) error

	// FindStale returns transactions in any of statuses whose UpdatedAt is
	// older than olderThan, used by the reconciliation worker to re-drive
	// work left behind by a crashed process.
	FindStale(ctx context.Context, statuses []domain.TransactionStatus, olderThan time.Duration, limit int) ([]*domain.Transaction, error)

	// FindDueRetries returns RECOVERY_PENDING transactions whose NextRetryAt
	// is at or before now, used by RetryManager.RebuildFromStore to rebuild
	// the RetryQueue's in-memory timers on restart (spec §4.6 "Crash
	// semantics") and by RetryManager.GetRetryStats to count due retries.
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error)
}
