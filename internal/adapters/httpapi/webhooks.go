package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ficmart/txengine/internal/adapters/webhook"
	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/service"
	"github.com/google/uuid"
)

// WebhookHandler accepts asynchronous status pushes from the payment
// network (spec §6 "Provider webhook"). The wire format is the
// collaborator's concern; this engine only requires enough to drive
// UpdateStatus.
type WebhookHandler struct {
	manager  *service.TransactionManager
	verifier *webhook.Verifier
}

func NewWebhookHandler(manager *service.TransactionManager, verifier *webhook.Verifier) *WebhookHandler {
	return &WebhookHandler{manager: manager, verifier: verifier}
}

func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/{provider}", h.HandleWebhook)
}

type webhookPayload struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, err)
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if err := h.verifier.Verify(body, signature); err != nil {
		respondWithError(w, &domain.DomainError{Code: "UNAUTHORIZED", Kind: domain.KindAuth, Message: err.Error()})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: err.Error()})
		return
	}

	id, err := uuid.Parse(payload.TransactionID)
	if err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: "invalid transaction id in webhook payload"})
		return
	}

	var txErr *domain.TransactionError
	target := domain.TransactionStatus(payload.Status)
	if target == domain.StatusFailed {
		txErr = &domain.TransactionError{Code: payload.Code, Message: payload.Message}
	}

	if _, err := h.manager.UpdateStatus(r.Context(), id, target, txErr); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
