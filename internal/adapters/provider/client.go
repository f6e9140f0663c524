// Package provider is the outbound adapter to the downstream payment
// network, grounded on the teacher's internal/adapters/bank package
// (HTTPBankClient's generic postJSON helper, RetryBankClient's backoff
// decorator) generalized from bank-specific authorize/capture/void/refund
// calls to the engine's single ports.PaymentProvider.Submit surface.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ficmart/txengine/internal/config"
	"github.com/ficmart/txengine/internal/core/ports"
)

// HTTPClient submits transactions to a downstream payment network over
// HTTP, the same postJSON idiom as the teacher's HTTPBankClient.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(cfg config.ProviderConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// wireRequest/wireResult are the HTTP payload shapes; ports.ProviderRequest/
// ProviderResult stay provider-agnostic so the core never imports net/http.
type wireRequest struct {
	TransactionID   string `json:"transaction_id"`
	Type            string `json:"type"`
	AmountMinor     int64  `json:"amount_minor"`
	Currency        string `json:"currency"`
	CustomerID      string `json:"customer_id"`
	PaymentMethodID string `json:"payment_method_id"`
	ProviderRef     string `json:"provider_ref,omitempty"`
}

type wireResult struct {
	Accepted    bool   `json:"accepted"`
	ProviderRef string `json:"provider_ref"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

func (c *HTTPClient) Submit(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResult, error) {
	body := wireRequest{
		TransactionID:   req.TransactionID,
		Type:            string(req.Type),
		AmountMinor:     req.Amount.AmountMinor,
		Currency:        req.Amount.Currency,
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		ProviderRef:     req.ProviderRef,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return ports.ProviderResult{}, fmt.Errorf("marshal provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/submit", bytes.NewReader(jsonData))
	if err != nil {
		return ports.ProviderResult{}, fmt.Errorf("build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.ProviderResult{}, &Error{Transient: true, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return ports.ProviderResult{}, &Error{StatusCode: resp.StatusCode, Transient: true, Cause: fmt.Errorf("provider returned %d: %s", resp.StatusCode, respBody)}
	}
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return ports.ProviderResult{}, &Error{StatusCode: resp.StatusCode, Transient: false, Cause: fmt.Errorf("provider returned %d: %s", resp.StatusCode, respBody)}
	}

	var wr wireResult
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return ports.ProviderResult{}, fmt.Errorf("decode provider response: %w", err)
	}

	return ports.ProviderResult{
		Accepted:    wr.Accepted,
		ProviderRef: wr.ProviderRef,
		Code:        wr.Code,
		Message:     wr.Message,
	}, nil
}
