package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
)

// ReconciliationWorker periodically scans for transactions stuck mid-flight
// past a staleness threshold and re-drives them, grounded on the teacher's
// worker.Reconciler ticker loop and FindPendingPayments scan. The engine has
// no authorization-expiry notion to check against the provider, so the only
// reconciliation action is re-entering recovery for anything that looks
// abandoned.
type ReconciliationWorker struct {
	store      ports.TransactionStore
	recovery   *RecoveryManager
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	log        *slog.Logger
}

func NewReconciliationWorker(store ports.TransactionStore, recovery *RecoveryManager, interval, staleAfter time.Duration, batchSize int, log *slog.Logger) *ReconciliationWorker {
	return &ReconciliationWorker{
		store:      store,
		recovery:   recovery,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        log.With("component", "reconciliation_worker"),
	}
}

// Start blocks, running a reconciliation pass every interval until ctx is
// cancelled, the same shape as the teacher's Reconciler.Start.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("starting reconciliation worker", "interval", w.interval, "stale_after", w.staleAfter)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("stopping reconciliation worker")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single reconciliation cycle; exported so tests and an
// admin endpoint can trigger it outside the ticker.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) {
	stuck, err := w.store.FindStale(ctx, []domain.TransactionStatus{
		domain.StatusProcessing,
		domain.StatusRecoveryInProgress,
	}, w.staleAfter, w.batchSize)
	if err != nil {
		w.log.Error("failed to fetch stale transactions", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	w.log.Info("reconciling stuck transactions", "count", len(stuck))

	for _, tx := range stuck {
		// A crashed process can leave a transaction mid-flight with no
		// recorded error; treat it as a timeout so recovery strategies
		// have something to evaluate.
		if tx.Error == nil {
			tx.Error = &domain.TransactionError{
				Code:        "RECONCILIATION_TIMEOUT",
				Message:     "transaction exceeded staleness threshold without completing",
				Recoverable: true,
				Retryable:   true,
			}
		}
		if err := tx.TransitionTo(domain.StatusFailed, time.Now()); err != nil {
			w.log.Error("cannot transition stale transaction to failed", "transaction_id", tx.ID, "status", tx.Status, "error", err)
			continue
		}
		if err := w.store.Update(ctx, tx); err != nil {
			w.log.Error("failed to persist stale transaction", "transaction_id", tx.ID, "error", err)
			continue
		}
		if err := w.recovery.InitiateRecovery(ctx, tx); err != nil {
			w.log.Error("failed to initiate recovery for stale transaction", "transaction_id", tx.ID, "error", err)
		}
	}
}
