// Package service implements the engine's core orchestration: the
// transaction lifecycle, retry scheduling, recovery strategies, the event
// outbox, and the record locker's business rules. It depends only on
// internal/core/ports, never on a concrete adapter, mirroring the teacher's
// core/service package.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/ports"
	"github.com/google/uuid"
)

// TransactionManager owns the lifecycle operations of spec §4.1: begin,
// get, query, updateStatus and executeRetry, generalized from the
// teacher's per-operation services (AuthorizationService, CaptureService,
// VoidService, RefundService) into one surface shared by all three
// transaction types.
type TransactionManager struct {
	store    ports.TransactionStore
	provider ports.PaymentProvider
	limits   ports.CustomerLimits
	lockSvc  *RecordLockerService
	emitter  *EventEmitter
}

func NewTransactionManager(store ports.TransactionStore, provider ports.PaymentProvider, limits ports.CustomerLimits, lockSvc *RecordLockerService, emitter *EventEmitter) *TransactionManager {
	return &TransactionManager{
		store:    store,
		provider: provider,
		limits:   limits,
		lockSvc:  lockSvc,
		emitter:  emitter,
	}
}

// BeginRequest is the validated input to Begin, shaped around spec §6's
// POST /transactions body.
type BeginRequest struct {
	IdempotencyKey  string
	Type            domain.TransactionType
	Amount          domain.Money
	CustomerID      string
	PaymentMethodID string
	ProviderRef     string // required for REFUND/CHARGEBACK
	Metadata        map[string]any
}

// Begin admits a new transaction, replaying an existing one with the same
// idempotency key rather than double-processing (spec §4.1 "begin"). A key
// reused with a materially different request body is a conflict, not a
// replay (Open Question pinned in SPEC_FULL.md).
func (m *TransactionManager) Begin(ctx context.Context, req BeginRequest) (*domain.Transaction, error) {
	if len(req.IdempotencyKey) < 8 {
		return nil, domain.NewInvalidKeyError(req.IdempotencyKey)
	}
	if _, err := domain.NewMoney(req.Amount.AmountMinor, req.Amount.Currency); err != nil {
		return nil, err
	}

	if existing, err := m.store.FindByIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
		return nil, domain.NewSystemError(err)
	} else if existing != nil {
		if requestFingerprint(req) != existing.Metadata["__fingerprint"] {
			return nil, domain.NewIdempotencyReplayMismatchError()
		}
		return existing, nil
	}

	if req.Type == domain.TransactionPayment {
		if err := m.limits.CheckLimit(ctx, req.CustomerID, req.Amount); err != nil {
			return nil, err
		}
	}
	if (req.Type == domain.TransactionRefund || req.Type == domain.TransactionChargeback) && req.ProviderRef == "" {
		return nil, &domain.DomainError{
			Code:    "MISSING_PROVIDER_REF",
			Kind:    domain.KindValidation,
			Message: fmt.Sprintf("%s requires the originating transaction's provider reference", req.Type),
		}
	}

	now := time.Now()
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["__fingerprint"] = requestFingerprint(req)

	tx := &domain.Transaction{
		ID:              uuid.New(),
		IdempotencyKey:  req.IdempotencyKey,
		Type:            req.Type,
		Status:          domain.StatusPending,
		Amount:          req.Amount,
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		ProviderRef:     req.ProviderRef,
		Metadata:        metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := m.store.Create(ctx, tx); err != nil {
		if de, ok := err.(*domain.DomainError); ok && de.Code == domain.ErrCodeIdempotencyReplay {
			return nil, err
		}
		return nil, domain.NewSystemError(err)
	}

	m.emitter.Emit(ctx, domain.NewEvent(domain.EventTransactionCreated, tx.ID.String(), tx))

	if err := m.authorize(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// authorize drives a freshly-created PENDING transaction through the
// provider under lock (spec §4.1: PENDING -> PROCESSING, then PROCESSING ->
// COMPLETED or FAILED depending on the provider's answer), mutating the
// caller's tx in place so Begin can return the final, resolved record.
func (m *TransactionManager) authorize(ctx context.Context, tx *domain.Transaction) error {
	return m.lockSvc.WithLock(ctx, lockKeyFor(tx.ID), func(ctx context.Context) error {
		current, err := m.store.FindByID(ctx, tx.ID)
		if err != nil {
			return domain.NewSystemError(err)
		}
		if current == nil {
			return domain.NewNotFoundError(tx.ID.String())
		}

		if err := current.TransitionTo(domain.StatusProcessing, time.Now()); err != nil {
			return err
		}
		if err := m.store.Update(ctx, current); err != nil {
			return domain.NewSystemError(err)
		}

		result, provErr := m.provider.Submit(ctx, ports.ProviderRequest{
			TransactionID:   current.ID.String(),
			Type:            current.Type,
			Amount:          current.Amount,
			CustomerID:      current.CustomerID,
			PaymentMethodID: current.PaymentMethodID,
			ProviderRef:     current.ProviderRef,
			IdempotencyKey:  current.IdempotencyKey,
		})

		if provErr != nil || !result.Accepted {
			current.Error = providerError(provErr, result)
			if err := current.TransitionTo(domain.StatusFailed, time.Now()); err != nil {
				return err
			}
			if err := m.store.Update(ctx, current); err != nil {
				return domain.NewSystemError(err)
			}
			m.emitter.Emit(ctx, domain.NewEvent(domain.EventTransactionFailed, current.ID.String(), current))
			*tx = *current
			return nil
		}

		current.ProviderRef = result.ProviderRef
		if err := current.TransitionTo(domain.StatusCompleted, time.Now()); err != nil {
			return err
		}
		if err := m.store.Update(ctx, current); err != nil {
			return domain.NewSystemError(err)
		}
		m.emitter.Emit(ctx, domain.NewEvent(domain.EventTransactionCompleted, current.ID.String(), current))
		*tx = *current
		return nil
	})
}

// requestFingerprint hashes the fields that must match for a replay to be
// considered the same logical request, per the teacher's capture.go
// sha256-over-request-fields pattern.
func requestFingerprint(req BeginRequest) string {
	payload, _ := json.Marshal(struct {
		Type            domain.TransactionType
		Amount          domain.Money
		CustomerID      string
		PaymentMethodID string
		ProviderRef     string
	}{req.Type, req.Amount, req.CustomerID, req.PaymentMethodID, req.ProviderRef})
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum)
}

// Get returns a transaction by id or a NotFound domain error.
func (m *TransactionManager) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := m.store.FindByID(ctx, id)
	if err != nil {
		return nil, domain.NewSystemError(err)
	}
	if tx == nil {
		return nil, domain.NewNotFoundError(id.String())
	}
	return tx, nil
}

// Query lists a customer's transactions per spec §6's GET
// /transactions/customer/:id filters.
func (m *TransactionManager) Query(ctx context.Context, customerID string, filter domain.QueryFilter) ([]*domain.Transaction, error) {
	txs, err := m.store.FindByCustomerID(ctx, customerID, filter)
	if err != nil {
		return nil, domain.NewSystemError(err)
	}
	return txs, nil
}

// UpdateStatus drives tx to target under lock, persists it, and emits the
// matching lifecycle event. Its callers are the HTTP layer's PATCH
// /transactions/:id/status handler and the provider webhook handler;
// RetryManager and RecoveryManager change status through their own locked
// sections instead.
func (m *TransactionManager) UpdateStatus(ctx context.Context, id uuid.UUID, target domain.TransactionStatus, txErr *domain.TransactionError) (*domain.Transaction, error) {
	var tx *domain.Transaction
	err := m.lockSvc.WithLock(ctx, lockKeyFor(id), func(ctx context.Context) error {
		current, err := m.store.FindByID(ctx, id)
		if err != nil {
			return domain.NewSystemError(err)
		}
		if current == nil {
			return domain.NewNotFoundError(id.String())
		}

		if err := current.TransitionTo(target, time.Now()); err != nil {
			return err
		}
		current.Error = txErr

		if err := m.store.Update(ctx, current); err != nil {
			return domain.NewSystemError(err)
		}

		m.emitter.Emit(ctx, domain.NewEvent(eventTypeForStatus(target), current.ID.String(), current))
		tx = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ExecuteRetry resubmits tx to the payment provider from RECOVERY_PENDING,
// per spec §4.1's retry edge, holding one lock across the
// RECOVERY_PENDING -> RECOVERY_IN_PROGRESS transition, the provider call, and
// the terminal COMPLETED/FAILED transition so two concurrent firings for the
// same id (for example timers in two processes that each rebuilt it from the
// store) can't observe the same pre-state and double-submit. It deliberately does not recheck
// customer limits (Open Question, pinned: limits gate admission, not
// resubmission).
func (m *TransactionManager) ExecuteRetry(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx *domain.Transaction
	err := m.lockSvc.WithLock(ctx, lockKeyFor(id), func(ctx context.Context) error {
		current, err := m.store.FindByID(ctx, id)
		if err != nil {
			return domain.NewSystemError(err)
		}
		if current == nil {
			return domain.NewNotFoundError(id.String())
		}
		if current.Status != domain.StatusRecoveryPending {
			return domain.NewInvalidStateError(id.String(), current.Status)
		}
		if err := current.TransitionTo(domain.StatusRecoveryInProgress, time.Now()); err != nil {
			return err
		}
		if err := m.store.Update(ctx, current); err != nil {
			return domain.NewSystemError(err)
		}
		m.emitter.Emit(ctx, domain.NewEvent(domain.EventRetryStarted, current.ID.String(), current))

		result, provErr := m.provider.Submit(ctx, ports.ProviderRequest{
			TransactionID:   current.ID.String(),
			Type:            current.Type,
			Amount:          current.Amount,
			CustomerID:      current.CustomerID,
			PaymentMethodID: current.PaymentMethodID,
			ProviderRef:     current.ProviderRef,
			IdempotencyKey:  current.IdempotencyKey,
		})

		if provErr != nil || !result.Accepted {
			current.Error = providerError(provErr, result)
			if err := current.TransitionTo(domain.StatusFailed, time.Now()); err != nil {
				return err
			}
			if err := m.store.Update(ctx, current); err != nil {
				return domain.NewSystemError(err)
			}
			m.emitter.Emit(ctx, domain.NewEvent(domain.EventFailedAfterRetry, current.ID.String(), current))
			tx = current
			return nil
		}

		current.ProviderRef = result.ProviderRef
		if err := current.TransitionTo(domain.StatusCompleted, time.Now()); err != nil {
			return err
		}
		if err := m.store.Update(ctx, current); err != nil {
			return domain.NewSystemError(err)
		}
		m.emitter.Emit(ctx, domain.NewEvent(domain.EventCompletedAfterRetry, current.ID.String(), current))
		tx = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// providerError builds the TransactionError a failed/declined provider
// response leaves on a transaction, shared by the initial authorization and
// every retry attempt.
func providerError(err error, result ports.ProviderResult) *domain.TransactionError {
	txErr := &domain.TransactionError{
		Code:      result.Code,
		Message:   errMessage(err, result),
		Retryable: err != nil,
	}
	if txErr.Code == "" {
		txErr.Code = "PROVIDER_ERROR"
	}
	return txErr
}

func errMessage(err error, result ports.ProviderResult) string {
	if err != nil {
		return err.Error()
	}
	return result.Message
}

func lockKeyFor(id uuid.UUID) string {
	return "transaction:" + id.String()
}

func eventTypeForStatus(status domain.TransactionStatus) string {
	switch status {
	case domain.StatusCompleted:
		return domain.EventTransactionCompleted
	case domain.StatusFailed:
		return domain.EventTransactionFailed
	case domain.StatusRolledBack:
		return domain.EventTransactionRolledBack
	default:
		return domain.EventTransactionUpdated
	}
}
