package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventStore is the durable outbox table backing at-least-once event
// delivery (spec §4.4), grounded on the same scan/CollectRows style as
// TransactionStore.
type EventStore struct {
	q Executor
}

func NewEventStore(db *DB) *EventStore {
	return &EventStore{q: db.Pool}
}

const eventColumns = `id, type, data, timestamp, processed, error, retry_count, next_retry_at`

func (s *EventStore) SaveEvent(ctx context.Context, ev *domain.Event) error {
	_, err := s.q.Exec(ctx, `INSERT INTO events (`+eventColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ev.ID, ev.Type, ev.Data, ev.Timestamp, ev.Processed, ev.Error, ev.RetryCount, ev.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func (s *EventStore) GetEventByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	row := s.q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func (s *EventStore) GetUnprocessedEvents(ctx context.Context, now time.Time, limit int) ([]*domain.Event, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE processed = false AND (next_retry_at IS NULL OR next_retry_at <= $1)
		 ORDER BY timestamp ASC LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Event, error) {
		return scanEvent(row)
	})
}

func (s *EventStore) MarkAsProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.Exec(ctx, `UPDATE events SET processed = true, error = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (s *EventStore) MarkAsFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.q.Exec(ctx, `UPDATE events SET processed = true, error = $1 WHERE id = $2`, errMsg, id)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// MarkForRetry bumps retryCount and schedules nextRetryAt per spec §4.4's
// min(1000*2^(retryCount-1), 60000)ms backoff.
func (s *EventStore) MarkForRetry(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	next := time.Now().Add(domain.EventRetryDelay(retryCount))
	_, err := s.q.Exec(ctx,
		`UPDATE events SET retry_count = $1, error = $2, next_retry_at = $3 WHERE id = $4`,
		retryCount, errMsg, next, id,
	)
	if err != nil {
		return fmt.Errorf("mark event for retry: %w", err)
	}
	return nil
}

func (s *EventStore) ResetProcessedFlag(ctx context.Context, id uuid.UUID) error {
	_, err := s.q.Exec(ctx, `UPDATE events SET processed = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reset event processed flag: %w", err)
	}
	return nil
}

func (s *EventStore) PruneProcessedEvents(ctx context.Context, olderThan time.Time) (int, error) {
	cmdTag, err := s.q.Exec(ctx,
		`DELETE FROM events WHERE processed = true AND error IS NULL AND timestamp < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("prune processed events: %w", err)
	}
	return int(cmdTag.RowsAffected()), nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var ev domain.Event
	err := row.Scan(&ev.ID, &ev.Type, &ev.Data, &ev.Timestamp, &ev.Processed, &ev.Error, &ev.RetryCount, &ev.NextRetryAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &ev, nil
}
