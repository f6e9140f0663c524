package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
	"github.com/google/uuid"
)

// RetryManager owns spec §4.2: deciding whether a failed transaction is
// retryable, computing the backoff, and handing the due-at time to the
// RetryQueue. Grounded on the teacher's RetryBankClient.backoff math,
// generalized from a single client-side retry loop into a first-class
// schedule/cancel service operating on persisted transactions.
type RetryManager struct {
	store      ports.TransactionStore
	queue      *RetryQueue
	policy     domain.RetryPolicy
	lockSvc    *RecordLockerService
	emitter    *EventEmitter
	log        *slog.Logger
	onDue      func(ctx context.Context, id uuid.UUID)
	onExhausted func(ctx context.Context, tx *domain.Transaction) error
}

func NewRetryManager(store ports.TransactionStore, queue *RetryQueue, policy domain.RetryPolicy, lockSvc *RecordLockerService, emitter *EventEmitter, log *slog.Logger) *RetryManager {
	return &RetryManager{store: store, queue: queue, policy: policy, lockSvc: lockSvc, emitter: emitter, log: log}
}

// SetExecutor wires the callback the queue invokes once a retry comes due
// (normally TransactionManager.ExecuteRetry). Split from NewRetryManager
// since TransactionManager and RetryManager are constructed independently
// and neither owns the other in the composition root.
func (r *RetryManager) SetExecutor(fn func(ctx context.Context, id uuid.UUID)) {
	r.onDue = fn
}

// SetRecoveryHandler wires the callback invoked once a transaction has spent
// every retry attempt (normally RecoveryManager.InitiateRecovery). Split out
// the same way SetExecutor is: RecoveryManager is built from a RetryStrategy
// that wraps this RetryManager, so RetryManager can't take a *RecoveryManager
// in its own constructor without a construction cycle.
func (r *RetryManager) SetRecoveryHandler(fn func(ctx context.Context, tx *domain.Transaction) error) {
	r.onExhausted = fn
}

func (r *RetryManager) fireDue(ctx context.Context, id uuid.UUID) {
	if r.onDue == nil {
		r.log.Warn("retry came due with no executor wired", "transaction_id", id)
		return
	}
	r.onDue(ctx, id)
}

// RetryStats summarizes the queue for spec §4.2's getRetryStats.
type RetryStats struct {
	Scheduled int
	Due       int
}

// ScheduleRetry moves tx into RECOVERY_PENDING with a computed NextRetryAt,
// or forces it to FAILED and hands it to the recovery handler once
// MaxAttempts is spent (spec §4.2, §8's "retryCount <= maxAttempts, and if
// equality holds, status = FAILED" invariant). The whole read-mutate-persist
// section runs under the per-transaction lock, the same as every other
// mutation in the engine.
func (r *RetryManager) ScheduleRetry(ctx context.Context, tx *domain.Transaction) error {
	if tx.RetryCount >= r.policy.MaxAttempts {
		return r.exhaustRetries(ctx, tx)
	}

	var delay time.Duration
	err := r.lockSvc.WithLock(ctx, lockKeyFor(tx.ID), func(ctx context.Context) error {
		tx.RetryCount++
		delay = r.policy.Delay(tx.RetryCount)
		nextRetry := time.Now().Add(delay)
		tx.NextRetryAt = &nextRetry

		// RECOVERY_PENDING is a privileged entry point for both ScheduleRetry and
		// RecoveryManager.InitiateRecovery: a FAILED transaction crosses into it
		// for the first time, one already there (re-scheduled after a failed
		// attempt) just gets new timing, and one RecoveryManager moved to
		// RECOVERY_IN_PROGRESS while dispatching to this same strategy is handed
		// back down rather than rejected.
		switch tx.Status {
		case domain.StatusRecoveryPending:
			tx.UpdatedAt = time.Now()
		case domain.StatusFailed, domain.StatusRecoveryInProgress:
			tx.ForceStatus(domain.StatusRecoveryPending, time.Now())
		default:
			return domain.NewInvalidStateError(tx.ID.String(), tx.Status)
		}
		if err := r.store.Update(ctx, tx); err != nil {
			return domain.NewSystemError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	id := tx.ID
	r.queue.Schedule(id, delay, func() {
		r.log.Info("retry due", "transaction_id", id, "attempt", tx.RetryCount)
		r.fireDue(context.Background(), id)
	})
	return nil
}

// exhaustRetries forces tx to FAILED with RETRY_LIMIT_EXCEEDED, emits
// transaction.retry_exhausted, and hands the transaction to the wired
// recovery handler so it reaches the dead-letter queue. It always returns a
// RETRY_LIMIT_EXCEEDED domain error to the caller, even when persisting the
// forced failure itself runs into trouble, since the retry ceiling was what
// the caller asked about.
func (r *RetryManager) exhaustRetries(ctx context.Context, tx *domain.Transaction) error {
	limitErr := &domain.DomainError{
		Code:    domain.ErrCodeRetryLimit,
		Kind:    domain.KindConflict,
		Message: "retry attempts exhausted",
	}

	err := r.lockSvc.WithLock(ctx, lockKeyFor(tx.ID), func(ctx context.Context) error {
		tx.Error = &domain.TransactionError{
			Code:    domain.ErrCodeRetryLimit,
			Message: "retry attempts exhausted",
		}
		if tx.Status != domain.StatusFailed {
			tx.ForceStatus(domain.StatusFailed, time.Now())
		}
		if err := r.store.Update(ctx, tx); err != nil {
			return domain.NewSystemError(err)
		}
		return nil
	})
	if err != nil {
		r.log.Error("failed to force exhausted transaction to failed", "transaction_id", tx.ID, "error", err)
		return limitErr
	}

	r.emitter.Emit(ctx, domain.NewEvent(domain.EventRetryExhausted, tx.ID.String(), tx))

	if r.onExhausted == nil {
		r.log.Warn("retry exhausted with no recovery handler wired", "transaction_id", tx.ID)
		return limitErr
	}
	if err := r.onExhausted(ctx, tx); err != nil {
		r.log.Error("failed to hand exhausted transaction to recovery", "transaction_id", tx.ID, "error", err)
	}
	return limitErr
}

// GetRetryStats reports the in-memory queue size and how many RECOVERY_PENDING
// transactions in the store are already past their NextRetryAt, for spec
// §4.2's getRetryStats.
func (r *RetryManager) GetRetryStats(ctx context.Context) (RetryStats, error) {
	due, err := r.store.FindDueRetries(ctx, time.Now(), 10000)
	if err != nil {
		return RetryStats{}, domain.NewSystemError(err)
	}
	return RetryStats{Scheduled: r.queue.Len(), Due: len(due)}, nil
}

// CancelRetry removes a pending retry timer, used when a transaction is
// manually resolved before its scheduled attempt fires.
func (r *RetryManager) CancelRetry(id uuid.UUID) {
	r.queue.Cancel(id)
}

// RebuildFromStore reloads due/pending retries from durable storage into the
// in-memory queue, the crash-recovery path spec §4.6 requires. Each rebuilt
// timer fires through the same executor ScheduleRetry uses. The far-future
// cutoff selects every RECOVERY_PENDING row with a stored NextRetryAt, not
// only the ones already due.
func (r *RetryManager) RebuildFromStore(ctx context.Context) error {
	txs, err := r.store.FindDueRetries(ctx, time.Now().AddDate(100, 0, 0), 1000)
	if err != nil {
		return domain.NewSystemError(err)
	}
	for _, tx := range txs {
		var delay time.Duration
		if tx.NextRetryAt != nil {
			delay = time.Until(*tx.NextRetryAt)
		}
		id := tx.ID
		r.queue.Schedule(id, delay, func() { r.fireDue(context.Background(), id) })
	}
	return nil
}
