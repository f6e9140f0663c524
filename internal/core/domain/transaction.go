// Package domain holds the engine's core types: transactions, events, locks,
// dead-letter entries, and the rules that govern how they move.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType distinguishes the three kinds of money movement the engine governs.
type TransactionType string

const (
	TransactionPayment    TransactionType = "PAYMENT"
	TransactionRefund     TransactionType = "REFUND"
	TransactionChargeback TransactionType = "CHARGEBACK"
)

// TransactionStatus is a node in the lifecycle graph described in the state machine.
type TransactionStatus string

const (
	StatusPending            TransactionStatus = "PENDING"
	StatusProcessing         TransactionStatus = "PROCESSING"
	StatusCompleted          TransactionStatus = "COMPLETED"
	StatusFailed             TransactionStatus = "FAILED"
	StatusRolledBack         TransactionStatus = "ROLLED_BACK"
	StatusRecoveryPending    TransactionStatus = "RECOVERY_PENDING"
	StatusRecoveryInProgress TransactionStatus = "RECOVERY_IN_PROGRESS"
)

// Money is represented in minor currency units (cents) to avoid floating-point
// drift, the same choice the teacher gateway makes for Payment.AmountCents.
type Money struct {
	AmountMinor int64
	Currency    string
}

// Transaction is the atomic unit the engine tracks end to end.
type Transaction struct {
	ID              uuid.UUID
	IdempotencyKey  string
	Type            TransactionType
	Status          TransactionStatus
	Amount          Money
	CustomerID      string
	PaymentMethodID string
	RetryCount      int
	Error           *TransactionError
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	FailedAt        *time.Time
	NextRetryAt     *time.Time
	ProviderRef     string
}

// transitions enumerates the only legal edges in the state graph (spec §4.1).
var transitions = map[TransactionStatus]map[TransactionStatus]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusFailed:     true,
	},
	StatusProcessing: {
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusRolledBack: true,
	},
	StatusFailed: {
		StatusRecoveryPending: true,
	},
	StatusRecoveryPending: {
		StatusRecoveryInProgress: true,
	},
	StatusRecoveryInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// CanTransitionTo reports whether moving from the receiver's current status to
// target is a legal edge in the lifecycle graph.
func (t *Transaction) CanTransitionTo(target TransactionStatus) error {
	if allowed, ok := transitions[t.Status]; ok && allowed[target] {
		return nil
	}
	return NewInvalidTransitionError(t.Status, target)
}

// IsTerminal reports whether the transaction can no longer change state.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusRolledBack:
		return true
	case StatusFailed:
		// FAILED is only terminal once no recovery path remains; callers that
		// already decided not to retry/recover mark it terminal by leaving it here.
		return true
	default:
		return false
	}
}

// TransitionTo moves the transaction to target, stamping the matching
// timestamp fields, or returns an error if the edge is not legal.
func (t *Transaction) TransitionTo(target TransactionStatus, now time.Time) error {
	if err := t.CanTransitionTo(target); err != nil {
		return err
	}
	t.Status = target
	t.UpdatedAt = now
	switch target {
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusFailed, StatusRolledBack:
		t.FailedAt = &now
	}
	return nil
}

// ForceStatus sets status unconditionally, bypassing CanTransitionTo. Only
// RetryManager calls it: ScheduleRetry, to enter RECOVERY_PENDING from either
// FAILED or RECOVERY_IN_PROGRESS, and exhaustRetries, the retry-exhaustion
// path that forces a transaction to FAILED regardless of which in-flight
// state it is in.
func (t *Transaction) ForceStatus(target TransactionStatus, now time.Time) {
	t.Status = target
	t.UpdatedAt = now
	switch target {
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusFailed, StatusRolledBack:
		t.FailedAt = &now
	}
}

// QueryFilter narrows Transaction listing by customer (spec §6 GET /transactions/customer/:id).
type QueryFilter struct {
	Status    *TransactionStatus
	Type      *TransactionType
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}
