package ports

import (
	"context"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/google/uuid"
)

// EventStore is the durable outbox backing at-least-once event delivery
// (spec §2 EventStore, §4.4).
type EventStore interface {
	SaveEvent(ctx context.Context, ev *domain.Event) error
	GetEventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)

	// GetUnprocessedEvents returns rows with processed=false and
	// nextRetryAt IS NULL OR nextRetryAt <= now, ordered by timestamp ASC.
	GetUnprocessedEvents(ctx context.Context, now time.Time, limit int) ([]*domain.Event, error)

	MarkAsProcessed(ctx context.Context, id uuid.UUID) error
	MarkAsFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// MarkForRetry increments retryCount and computes nextRetryAt per spec
	// §4.4 (min(1000*2^(retryCount-1), 60000) ms).
	MarkForRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error

	ResetProcessedFlag(ctx context.Context, id uuid.UUID) error

	// PruneProcessedEvents deletes rows with processed=true AND error IS NULL
	// older than olderThan, returning the count removed.
	PruneProcessedEvents(ctx context.Context, olderThan time.Time) (int, error)
}
