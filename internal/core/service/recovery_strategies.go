package service

import (
	"context"

	"github.com/ficmart/txengine/internal/core/domain"
)

// RetryStrategy claims any transaction whose recorded error is retryable and
// has attempts remaining, deferring the actual resubmission to RetryManager
// so the same backoff/jitter math governs both manual and automatic
// recovery paths.
type RetryStrategy struct {
	retryManager *RetryManager
	maxAttempts  int
}

func NewRetryStrategy(retryManager *RetryManager, maxAttempts int) *RetryStrategy {
	return &RetryStrategy{retryManager: retryManager, maxAttempts: maxAttempts}
}

func (s *RetryStrategy) Name() string { return "retry" }

func (s *RetryStrategy) CanHandle(tx *domain.Transaction) bool {
	return tx.Error != nil && tx.Error.Retryable && tx.RetryCount < s.maxAttempts
}

func (s *RetryStrategy) Execute(ctx context.Context, tx *domain.Transaction) error {
	return s.retryManager.ScheduleRetry(ctx, tx)
}

// ManualReviewStrategy claims recoverable-but-non-retryable failures (e.g. a
// provider decline requiring a different payment method) and flags them for
// an operator instead of resubmitting automatically.
type ManualReviewStrategy struct {
	store interface {
		Update(ctx context.Context, tx *domain.Transaction) error
	}
}

func NewManualReviewStrategy(store interface {
	Update(ctx context.Context, tx *domain.Transaction) error
}) *ManualReviewStrategy {
	return &ManualReviewStrategy{store: store}
}

func (s *ManualReviewStrategy) Name() string { return "manual_review" }

func (s *ManualReviewStrategy) CanHandle(tx *domain.Transaction) bool {
	return tx.Error != nil && tx.Error.Recoverable && !tx.Error.Retryable
}

func (s *ManualReviewStrategy) Execute(ctx context.Context, tx *domain.Transaction) error {
	if tx.Metadata == nil {
		tx.Metadata = map[string]any{}
	}
	tx.Metadata["needs_manual_review"] = true
	return s.store.Update(ctx, tx)
}
