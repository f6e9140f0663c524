package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionStore is the durable ports.TransactionStore, grounded on the
// teacher's adapters/postgres/repository.go (manual SQL, pgx.CollectRows,
// unique-constraint-name inspection) generalized from the payments table to
// the transactions table's wider status/type set.
type TransactionStore struct {
	q Executor
}

func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{q: db.Pool}
}

const transactionColumns = `
	id, idempotency_key, type, status, amount_minor, currency, customer_id,
	payment_method_id, retry_count, error_code, error_message, error_recoverable,
	error_retryable, error_details, metadata, provider_ref,
	created_at, updated_at, completed_at, failed_at, next_retry_at
`

func (s *TransactionStore) Create(ctx context.Context, tx *domain.Transaction) error {
	errCode, errMessage, errRecoverable, errRetryable, errDetails := flattenTxError(tx.Error)
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`

	_, err = s.q.Exec(ctx, query,
		tx.ID, tx.IdempotencyKey, tx.Type, tx.Status, tx.Amount.AmountMinor, tx.Amount.Currency,
		tx.CustomerID, tx.PaymentMethodID, tx.RetryCount, errCode, errMessage, errRecoverable,
		errRetryable, errDetails, metadata, tx.ProviderRef,
		tx.CreatedAt, tx.UpdatedAt, tx.CompletedAt, tx.FailedAt, tx.NextRetryAt,
	)
	if err != nil {
		if IsUniqueViolation(err) && ConstraintName(err) == "transactions_idempotency_key_key" {
			return domain.NewIdempotencyReplayMismatchError()
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *TransactionStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := s.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (s *TransactionStore) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	row := s.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key)
	return scanTransaction(row)
}

func (s *TransactionStore) FindByCustomerID(ctx context.Context, customerID string, filter domain.QueryFilter) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE customer_id = $1`
	args := []any{customerID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions by customer_id: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Transaction, error) {
		return scanTransaction(row)
	})
}

func (s *TransactionStore) Update(ctx context.Context, tx *domain.Transaction) error {
	errCode, errMessage, errRecoverable, errRetryable, errDetails := flattenTxError(tx.Error)
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `UPDATE transactions SET
		status = $1, retry_count = $2, error_code = $3, error_message = $4,
		error_recoverable = $5, error_retryable = $6, error_details = $7,
		metadata = $8, provider_ref = $9, updated_at = $10, completed_at = $11,
		failed_at = $12, next_retry_at = $13
		WHERE id = $14`

	cmdTag, err := s.q.Exec(ctx, query,
		tx.Status, tx.RetryCount, errCode, errMessage, errRecoverable, errRetryable, errDetails,
		metadata, tx.ProviderRef, tx.UpdatedAt, tx.CompletedAt, tx.FailedAt, tx.NextRetryAt, tx.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.NewNotFoundError(tx.ID.String())
	}
	return nil
}

func (s *TransactionStore) FindStale(ctx context.Context, statuses []domain.TransactionStatus, olderThan time.Duration, limit int) ([]*domain.Transaction, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := s.q.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3`,
		statuses, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale transactions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Transaction, error) {
		return scanTransaction(row)
	})
}

func (s *TransactionStore) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		 ORDER BY next_retry_at ASC LIMIT $3`,
		domain.StatusRecoveryPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due retries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Transaction, error) {
		return scanTransaction(row)
	})
}

func flattenTxError(e *domain.TransactionError) (code, message any, recoverable, retryable any, details []byte) {
	if e == nil {
		return nil, nil, nil, nil, nil
	}
	details, _ = json.Marshal(e.Details)
	return e.Code, e.Message, e.Recoverable, e.Retryable, details
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var tx domain.Transaction
	var amountMinor int64
	var currency string
	var errCode, errMessage *string
	var errRecoverable, errRetryable *bool
	var errDetails, metadata []byte

	err := row.Scan(
		&tx.ID, &tx.IdempotencyKey, &tx.Type, &tx.Status, &amountMinor, &currency,
		&tx.CustomerID, &tx.PaymentMethodID, &tx.RetryCount, &errCode, &errMessage,
		&errRecoverable, &errRetryable, &errDetails, &metadata, &tx.ProviderRef,
		&tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt, &tx.FailedAt, &tx.NextRetryAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	tx.Amount = domain.Money{AmountMinor: amountMinor, Currency: currency}
	if errCode != nil {
		tx.Error = &domain.TransactionError{Code: *errCode}
		if errMessage != nil {
			tx.Error.Message = *errMessage
		}
		if errRecoverable != nil {
			tx.Error.Recoverable = *errRecoverable
		}
		if errRetryable != nil {
			tx.Error.Retryable = *errRetryable
		}
		if len(errDetails) > 0 {
			_ = json.Unmarshal(errDetails, &tx.Error.Details)
		}
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &tx.Metadata)
	}
	return &tx, nil
}
