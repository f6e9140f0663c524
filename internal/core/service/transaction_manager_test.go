package service

import (
	"context"
	"testing"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
)

func newTestManager() (*TransactionManager, *fakeTransactionStore) {
	store := newFakeTransactionStore()
	events := newFakeEventStore()
	emitter := NewEventEmitter(events, testLogger())
	lockSvc := newTestLockSvc()
	provider := &fakePaymentProvider{}
	limits := &fakeCustomerLimits{}
	mgr := NewTransactionManager(store, provider, limits, lockSvc, emitter)
	return mgr, store
}

func TestTransactionManager_Begin_AuthorizesAndCompletes(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	tx, err := mgr.Begin(ctx, BeginRequest{
		IdempotencyKey: "idem-key-001",
		Type:           domain.TransactionPayment,
		Amount:         domain.Money{AmountMinor: 1000, Currency: "USD"},
		CustomerID:     "cust-1",
	})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if tx.Status != domain.StatusCompleted {
		t.Errorf("Status = %v, want COMPLETED", tx.Status)
	}
	if tx.ProviderRef == "" {
		t.Error("ProviderRef not set from provider result")
	}
	if tx.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
}

func TestTransactionManager_Begin_FailsWhenProviderRejects(t *testing.T) {
	store := newFakeTransactionStore()
	events := newFakeEventStore()
	emitter := NewEventEmitter(events, testLogger())
	lockSvc := newTestLockSvc()
	provider := &fakePaymentProvider{
		SubmitFn: func(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResult, error) {
			return ports.ProviderResult{Accepted: false, Code: "DECLINED"}, nil
		},
	}
	limits := &fakeCustomerLimits{}
	mgr := NewTransactionManager(store, provider, limits, lockSvc, emitter)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx, BeginRequest{
		IdempotencyKey: "idem-key-001b",
		Type:           domain.TransactionPayment,
		Amount:         domain.Money{AmountMinor: 1000, Currency: "USD"},
		CustomerID:     "cust-1",
	})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if tx.Status != domain.StatusFailed {
		t.Errorf("Status = %v, want FAILED", tx.Status)
	}
	if tx.Error == nil || tx.Error.Code != "DECLINED" {
		t.Errorf("Error = %v, want DECLINED", tx.Error)
	}
}

func TestTransactionManager_Begin_ReplaysOnSameKey(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	req := BeginRequest{
		IdempotencyKey: "idem-key-002",
		Type:           domain.TransactionPayment,
		Amount:         domain.Money{AmountMinor: 500, Currency: "USD"},
		CustomerID:     "cust-1",
	}
	first, err := mgr.Begin(ctx, req)
	if err != nil {
		t.Fatalf("first Begin() error = %v", err)
	}
	second, err := mgr.Begin(ctx, req)
	if err != nil {
		t.Fatalf("second Begin() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("replay returned a different transaction: %v != %v", first.ID, second.ID)
	}
}

func TestTransactionManager_Begin_RejectsMismatchedReplay(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	req := BeginRequest{
		IdempotencyKey: "idem-key-003",
		Type:           domain.TransactionPayment,
		Amount:         domain.Money{AmountMinor: 500, Currency: "USD"},
		CustomerID:     "cust-1",
	}
	if _, err := mgr.Begin(ctx, req); err != nil {
		t.Fatalf("first Begin() error = %v", err)
	}

	req.Amount.AmountMinor = 999
	_, err := mgr.Begin(ctx, req)
	if !domain.IsCode(err, domain.ErrCodeIdempotencyReplay) {
		t.Fatalf("want IDEMPOTENCY_REPLAY_MISMATCH, got %v", err)
	}
}

func TestTransactionManager_UpdateStatus_CompletesProcessing(t *testing.T) {
	mgr, store := newTestManager()
	ctx := context.Background()

	tx, err := mgr.Begin(ctx, BeginRequest{
		IdempotencyKey: "idem-key-004",
		Type:           domain.TransactionPayment,
		Amount:         domain.Money{AmountMinor: 500, Currency: "USD"},
		CustomerID:     "cust-1",
	})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	tx.Status = domain.StatusProcessing
	store.txs[tx.ID] = tx

	updated, err := mgr.UpdateStatus(ctx, tx.ID, domain.StatusCompleted, nil)
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Errorf("Status = %v, want COMPLETED", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Error("CompletedAt not stamped")
	}
}

func TestTransactionManager_UpdateStatus_RejectsIllegalTransition(t *testing.T) {
	mgr, store := newTestManager()
	ctx := context.Background()

	tx, _ := mgr.Begin(ctx, BeginRequest{
		IdempotencyKey: "idem-key-005",
		Type:           domain.TransactionPayment,
		Amount:         domain.Money{AmountMinor: 500, Currency: "USD"},
		CustomerID:     "cust-1",
	})
	store.txs[tx.ID] = tx

	_, err := mgr.UpdateStatus(ctx, tx.ID, domain.StatusCompleted, nil)
	if !domain.IsCode(err, domain.ErrCodeInvalidTransition) {
		t.Fatalf("want INVALID_TRANSITION, got %v", err)
	}
}
