package ports

import (
	"context"

	"github.com/ficmart/txengine/internal/core/domain"
)

// ProviderRequest is what the engine hands to the downstream payment network
// for any of the three transaction types, generalized from the teacher's
// BankAuthorizationRequest/BankRefundRequest DTOs.
type ProviderRequest struct {
	TransactionID   string
	Type            domain.TransactionType
	Amount          domain.Money
	CustomerID      string
	PaymentMethodID string
	ProviderRef     string // required for REFUND/CHARGEBACK: the original PAYMENT's ProviderRef
	IdempotencyKey  string
}

// ProviderResult is the network's answer, normalized across PAYMENT/REFUND/
// CHARGEBACK so TransactionManager.executeRetry doesn't special-case the
// transaction type when interpreting it.
type ProviderResult struct {
	Accepted    bool
	ProviderRef string
	Code        string // provider-specific decline/error code, empty on success
	Message     string
}

// PaymentProvider is the boundary to the external payment network, the same
// role the teacher's ports.BankPort plays for its Authorize/Capture/Void/
// Refund calls, collapsed to a single Submit call covering all three
// transaction types.
type PaymentProvider interface {
	Submit(ctx context.Context, req ProviderRequest) (ProviderResult, error)
}
