package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ficmart/txengine/internal/config"
	"github.com/ficmart/txengine/internal/core/ports"
)

// RetryingClient decorates a ports.PaymentProvider with the network-level
// retry the teacher's RetryBankClient performs in front of its bank calls.
// This is distinct from RetryManager: that one retries a transaction across
// RECOVERY_PENDING cycles (minutes to hours, persisted); this one retries a
// single Submit call across transient network blips (milliseconds,
// in-memory, invisible to the rest of the engine).
type RetryingClient struct {
	inner      ports.PaymentProvider
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryingClient(inner ports.PaymentProvider, cfg config.ProviderRetryConfig) *RetryingClient {
	return &RetryingClient{
		inner:      inner,
		baseDelay:  cfg.BaseDelay,
		maxRetries: cfg.MaxRetries,
	}
}

func (r *RetryingClient) Submit(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResult, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ports.ProviderResult{}, ctx.Err()
		default:
		}

		result, err := r.inner.Submit(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return ports.ProviderResult{}, err
		}
		if attempt < r.maxRetries-1 {
			time.Sleep(r.backoff(attempt))
		}
	}

	return ports.ProviderResult{}, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func isRetryable(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (r *RetryingClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	return base + jitter
}
