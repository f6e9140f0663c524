package service

import (
	"context"
	"testing"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/google/uuid"
)

func TestRecoveryManager_UsesRetryStrategyWhenRetryable(t *testing.T) {
	store := newFakeTransactionStore()
	dlq := newFakeDeadLetterStore()
	events := newFakeEventStore()
	emitter := NewEventEmitter(events, testLogger())
	queue := NewRetryQueue()
	policy := domain.RetryPolicy{MaxAttempts: 3, Backoff: domain.BackoffFixed, InitialDelay: time.Millisecond, MaxDelay: time.Second}
	lockSvc := newTestLockSvc()
	rm := NewRetryManager(store, queue, policy, lockSvc, emitter, testLogger())
	strategy := NewRetryStrategy(rm, 3)

	mgr := NewRecoveryManager(store, dlq, lockSvc, emitter, testLogger(), strategy)

	tx := &domain.Transaction{
		ID:     uuid.New(),
		Status: domain.StatusFailed,
		Error:  &domain.TransactionError{Code: "TIMEOUT", Retryable: true},
	}
	store.txs[tx.ID] = tx

	if err := mgr.InitiateRecovery(context.Background(), tx); err != nil {
		t.Fatalf("InitiateRecovery() error = %v", err)
	}
	if tx.Status != domain.StatusRecoveryPending {
		t.Errorf("Status = %v, want RECOVERY_PENDING", tx.Status)
	}
	entries, _ := dlq.List(context.Background())
	if len(entries) != 0 {
		t.Errorf("expected no DLQ entries, got %d", len(entries))
	}
}

func TestRecoveryManager_FallsThroughToDeadLetter(t *testing.T) {
	store := newFakeTransactionStore()
	dlq := newFakeDeadLetterStore()
	events := newFakeEventStore()
	emitter := NewEventEmitter(events, testLogger())

	mgr := NewRecoveryManager(store, dlq, newTestLockSvc(), emitter, testLogger())

	tx := &domain.Transaction{
		ID:     uuid.New(),
		Status: domain.StatusFailed,
		Error:  &domain.TransactionError{Code: "FRAUD_SUSPECTED", Retryable: false, Recoverable: false},
	}
	store.txs[tx.ID] = tx

	if err := mgr.InitiateRecovery(context.Background(), tx); err != nil {
		t.Fatalf("InitiateRecovery() error = %v", err)
	}

	entry, err := dlq.Get(context.Background(), tx.ID.String())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry == nil {
		t.Fatal("expected a DLQ entry")
	}
	if entry.Error.Code != "FRAUD_SUSPECTED" {
		t.Errorf("Error.Code = %q, want FRAUD_SUSPECTED", entry.Error.Code)
	}
}
