package limits

import (
	"context"
	"testing"

	"github.com/ficmart/txengine/internal/config"
	"github.com/ficmart/txengine/internal/core/domain"
)

func TestStaticLimits_AllowsWithinCeiling(t *testing.T) {
	l := NewStaticLimits(config.CustomerLimitsConfig{DefaultMaxAmountMinor: 10000})
	err := l.CheckLimit(context.Background(), "cust-1", domain.Money{AmountMinor: 5000, Currency: "USD"})
	if err != nil {
		t.Fatalf("CheckLimit() error = %v, want nil", err)
	}
}

func TestStaticLimits_RejectsOverCeiling(t *testing.T) {
	l := NewStaticLimits(config.CustomerLimitsConfig{DefaultMaxAmountMinor: 10000})
	err := l.CheckLimit(context.Background(), "cust-1", domain.Money{AmountMinor: 10001, Currency: "USD"})
	if !domain.IsCode(err, domain.ErrCodeLimitExceeded) {
		t.Fatalf("expected a %s error, got %v", domain.ErrCodeLimitExceeded, err)
	}
}
