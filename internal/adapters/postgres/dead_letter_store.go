package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// DeadLetterStore backs ports.DeadLetterStore with a dead_letter_entries
// table, grounded on the same scan/CollectRows idiom as TransactionStore.
type DeadLetterStore struct {
	q Executor
}

func NewDeadLetterStore(db *DB) *DeadLetterStore {
	return &DeadLetterStore{q: db.Pool}
}

func (s *DeadLetterStore) Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error {
	details, err := json.Marshal(entry.Error.Details)
	if err != nil {
		return fmt.Errorf("marshal dead letter details: %w", err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO dead_letter_entries (transaction_id, error_code, error_message, error_recoverable, error_retryable, error_details, enqueued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (transaction_id) DO UPDATE SET
			error_code = EXCLUDED.error_code, error_message = EXCLUDED.error_message,
			error_recoverable = EXCLUDED.error_recoverable, error_retryable = EXCLUDED.error_retryable,
			error_details = EXCLUDED.error_details, enqueued_at = EXCLUDED.enqueued_at
	`, entry.TransactionID, entry.Error.Code, entry.Error.Message, entry.Error.Recoverable, entry.Error.Retryable, details, entry.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("enqueue dead letter entry: %w", err)
	}
	return nil
}

func (s *DeadLetterStore) Remove(ctx context.Context, transactionID string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM dead_letter_entries WHERE transaction_id = $1`, transactionID)
	if err != nil {
		return fmt.Errorf("remove dead letter entry: %w", err)
	}
	return nil
}

func (s *DeadLetterStore) Get(ctx context.Context, transactionID string) (*domain.DeadLetterEntry, error) {
	row := s.q.QueryRow(ctx, `
		SELECT transaction_id, error_code, error_message, error_recoverable, error_retryable, error_details, enqueued_at
		FROM dead_letter_entries WHERE transaction_id = $1
	`, transactionID)
	return scanDeadLetterEntry(row)
}

func (s *DeadLetterStore) List(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT transaction_id, error_code, error_message, error_recoverable, error_retryable, error_details, enqueued_at
		FROM dead_letter_entries ORDER BY enqueued_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list dead letter entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.DeadLetterEntry, error) {
		return scanDeadLetterEntry(row)
	})
}

func (s *DeadLetterStore) Stats(ctx context.Context) (domain.DeadLetterStats, error) {
	rows, err := s.q.Query(ctx, `SELECT error_code, COUNT(*) FROM dead_letter_entries GROUP BY error_code`)
	if err != nil {
		return domain.DeadLetterStats{}, fmt.Errorf("dead letter stats: %w", err)
	}
	defer rows.Close()

	stats := domain.DeadLetterStats{ByErrorCode: make(map[string]int)}
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			return domain.DeadLetterStats{}, fmt.Errorf("scan dead letter stats row: %w", err)
		}
		stats.ByErrorCode[code] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

func scanDeadLetterEntry(row pgx.Row) (*domain.DeadLetterEntry, error) {
	var e domain.DeadLetterEntry
	var details []byte
	err := row.Scan(&e.TransactionID, &e.Error.Code, &e.Error.Message, &e.Error.Recoverable, &e.Error.Retryable, &details, &e.EnqueuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan dead letter entry: %w", err)
	}
	if len(details) > 0 {
		_ = json.Unmarshal(details, &e.Error.Details)
	}
	return &e, nil
}
