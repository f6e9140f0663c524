package ports

import (
	"context"

	"github.com/ficmart/txengine/internal/core/domain"
)

// CustomerLimits is the collaborator TransactionManager.checkTransactionLimits
// consults before admitting a new PAYMENT (spec §4.1). Kept as a narrow port
// rather than folded into TransactionStore since a real deployment is likely
// to back it with a separate risk/limits service.
type CustomerLimits interface {
	// CheckLimit returns a LimitExceededError-kind error (via
	// domain.NewLimitExceededError) when admitting amount for customerID
	// would breach a configured ceiling, nil otherwise.
	CheckLimit(ctx context.Context, customerID string, amount domain.Money) error
}
