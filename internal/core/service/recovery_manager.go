package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
	"github.com/google/uuid"
)

// RecoveryStrategy is one entry in RecoveryManager's ordered strategy list
// (spec §4.3). CanHandle decides eligibility; Execute performs the recovery
// action and reports whether it resolved the transaction.
type RecoveryStrategy interface {
	Name() string
	CanHandle(tx *domain.Transaction) bool
	Execute(ctx context.Context, tx *domain.Transaction) error
}

// RecoveryManager walks its strategies in order for every FAILED
// transaction handed to it, falling through to the dead-letter queue when
// none apply, generalized from the *shape* of the teacher's
// worker/reconciler.go dispatch-by-status switch into a pluggable chain.
type RecoveryManager struct {
	store      ports.TransactionStore
	dlq        ports.DeadLetterStore
	lockSvc    *RecordLockerService
	emitter    *EventEmitter
	strategies []RecoveryStrategy
	log        *slog.Logger
}

func NewRecoveryManager(store ports.TransactionStore, dlq ports.DeadLetterStore, lockSvc *RecordLockerService, emitter *EventEmitter, log *slog.Logger, strategies ...RecoveryStrategy) *RecoveryManager {
	return &RecoveryManager{store: store, dlq: dlq, lockSvc: lockSvc, emitter: emitter, log: log, strategies: strategies}
}

// InitiateRecovery walks spec §4.3's five steps: reject a transaction that
// already resolved, drive FAILED -> RECOVERY_PENDING -> RECOVERY_IN_PROGRESS
// under lock, dispatch the strategy chain, and either finish the transaction
// (strategies that resolve it synchronously, like ManualReviewStrategy) or
// leave it to a strategy that re-routed it elsewhere itself (RetryStrategy,
// which hands back to RetryManager.ScheduleRetry and leaves tx at
// RECOVERY_PENDING awaiting its own timer). A transaction no strategy claims
// is forced to FAILED and enqueued to the dead-letter queue.
func (r *RecoveryManager) InitiateRecovery(ctx context.Context, tx *domain.Transaction) error {
	if tx.Status == domain.StatusCompleted || tx.Status == domain.StatusRolledBack {
		return domain.NewStateConflictError(tx.ID.String(), tx.Status)
	}

	var current *domain.Transaction
	err := r.lockSvc.WithLock(ctx, lockKeyFor(tx.ID), func(ctx context.Context) error {
		loaded, err := r.store.FindByID(ctx, tx.ID)
		if err != nil {
			return domain.NewSystemError(err)
		}
		if loaded == nil {
			return domain.NewNotFoundError(tx.ID.String())
		}
		if loaded.Status == domain.StatusCompleted || loaded.Status == domain.StatusRolledBack {
			return domain.NewStateConflictError(loaded.ID.String(), loaded.Status)
		}
		if loaded.Status == domain.StatusFailed {
			if err := loaded.TransitionTo(domain.StatusRecoveryPending, time.Now()); err != nil {
				return err
			}
		}
		if loaded.Status == domain.StatusRecoveryPending {
			if err := loaded.TransitionTo(domain.StatusRecoveryInProgress, time.Now()); err != nil {
				return err
			}
		}
		if err := r.store.Update(ctx, loaded); err != nil {
			return domain.NewSystemError(err)
		}
		current = loaded
		return nil
	})
	if err != nil {
		return err
	}

	r.emitter.Emit(ctx, domain.NewEvent(domain.EventRecoveryStarted, current.ID.String(), current))

	for _, strategy := range r.strategies {
		if !strategy.CanHandle(current) {
			continue
		}
		if err := strategy.Execute(ctx, current); err != nil {
			r.log.Warn("recovery strategy failed", "strategy", strategy.Name(), "transaction_id", current.ID, "error", err)
			continue
		}
		return r.finishRecovery(ctx, current)
	}

	return r.moveToDeadLetter(ctx, current)
}

// finishRecovery marks the recovery attempt resolved: if the winning
// strategy left tx at RECOVERY_IN_PROGRESS (it resolved the transaction
// synchronously, like ManualReviewStrategy flagging it), it transitions to
// COMPLETED and persists that. A strategy that already re-routed tx itself
// (RetryStrategy, which leaves it at RECOVERY_PENDING awaiting its own
// timer) has nothing further to do here; the illegal-edge check is what
// tells the two cases apart instead of switching on strategy identity.
func (r *RecoveryManager) finishRecovery(ctx context.Context, tx *domain.Transaction) error {
	return r.lockSvc.WithLock(ctx, lockKeyFor(tx.ID), func(ctx context.Context) error {
		current, err := r.store.FindByID(ctx, tx.ID)
		if err != nil {
			return domain.NewSystemError(err)
		}
		if current == nil {
			return domain.NewNotFoundError(tx.ID.String())
		}
		if err := current.TransitionTo(domain.StatusCompleted, time.Now()); err == nil {
			if err := r.store.Update(ctx, current); err != nil {
				return domain.NewSystemError(err)
			}
			r.emitter.Emit(ctx, domain.NewEvent(domain.EventRecoveryCompleted, current.ID.String(), current))
		}
		return nil
	})
}

func (r *RecoveryManager) moveToDeadLetter(ctx context.Context, tx *domain.Transaction) error {
	return r.lockSvc.WithLock(ctx, lockKeyFor(tx.ID), func(ctx context.Context) error {
		current, err := r.store.FindByID(ctx, tx.ID)
		if err != nil {
			return domain.NewSystemError(err)
		}
		if current == nil {
			return domain.NewNotFoundError(tx.ID.String())
		}
		if current.Status != domain.StatusFailed {
			if err := current.TransitionTo(domain.StatusFailed, time.Now()); err != nil {
				return err
			}
			if err := r.store.Update(ctx, current); err != nil {
				return domain.NewSystemError(err)
			}
		}

		entry := &domain.DeadLetterEntry{
			TransactionID: current.ID.String(),
			EnqueuedAt:    time.Now(),
		}
		if current.Error != nil {
			entry.Error = *current.Error
		}
		if err := r.dlq.Enqueue(ctx, entry); err != nil {
			return domain.NewSystemError(err)
		}
		r.emitter.Emit(ctx, domain.NewEvent(domain.EventMovedToDLQ, current.ID.String(), entry))
		return nil
	})
}

// ReprocessFromDeadLetter removes a DLQ entry and re-enters it into
// recovery, the operator-triggered path spec §4.3 describes.
func (r *RecoveryManager) ReprocessFromDeadLetter(ctx context.Context, id uuid.UUID) error {
	entry, err := r.dlq.Get(ctx, id.String())
	if err != nil {
		return domain.NewSystemError(err)
	}
	if entry == nil {
		return domain.NewNotFoundError(id.String())
	}
	tx, err := r.store.FindByID(ctx, id)
	if err != nil {
		return domain.NewSystemError(err)
	}
	if tx == nil {
		return domain.NewNotFoundError(id.String())
	}
	if err := r.dlq.Remove(ctx, id.String()); err != nil {
		return domain.NewSystemError(err)
	}
	r.emitter.Emit(ctx, domain.NewEvent(domain.EventReprocessing, tx.ID.String(), tx))
	return r.InitiateRecovery(ctx, tx)
}

// GetDeadLetterQueueStats reports DLQ contents grouped by error code (spec
// §4.3).
func (r *RecoveryManager) GetDeadLetterQueueStats(ctx context.Context) (domain.DeadLetterStats, error) {
	stats, err := r.dlq.Stats(ctx)
	if err != nil {
		return domain.DeadLetterStats{}, domain.NewSystemError(err)
	}
	return stats, nil
}
