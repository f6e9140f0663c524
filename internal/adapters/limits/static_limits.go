// Package limits implements ports.CustomerLimits. It currently enforces a
// single configured ceiling rather than a per-customer risk profile, the
// same "good enough for now" stance the teacher takes with its config-driven
// thresholds elsewhere (e.g. DatabaseConfig's pool sizing).
package limits

import (
	"context"

	"github.com/ficmart/txengine/internal/config"
	"github.com/ficmart/txengine/internal/core/domain"
)

// StaticLimits rejects any PAYMENT exceeding a fixed per-transaction ceiling,
// regardless of customer. A future per-customer override would live here as
// a store lookup before falling back to DefaultMaxAmountMinor.
type StaticLimits struct {
	defaultMax int64
}

func NewStaticLimits(cfg config.CustomerLimitsConfig) *StaticLimits {
	return &StaticLimits{defaultMax: cfg.DefaultMaxAmountMinor}
}

func (l *StaticLimits) CheckLimit(ctx context.Context, customerID string, amount domain.Money) error {
	if amount.AmountMinor > l.defaultMax {
		return domain.NewLimitExceededError(customerID, amount)
	}
	return nil
}
