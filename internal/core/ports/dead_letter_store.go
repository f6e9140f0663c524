package ports

import (
	"context"

	"github.com/ficmart/txengine/internal/core/domain"
)

// DeadLetterStore is the durable holding area for transactions whose retries
// and recovery strategies are exhausted (spec §2, §4.3).
type DeadLetterStore interface {
	Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error
	Remove(ctx context.Context, transactionID string) error
	Get(ctx context.Context, transactionID string) (*domain.DeadLetterEntry, error)
	List(ctx context.Context) ([]*domain.DeadLetterEntry, error)
	Stats(ctx context.Context) (domain.DeadLetterStats, error)
}
