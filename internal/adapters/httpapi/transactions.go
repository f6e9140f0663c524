package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/service"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
)

// beginRequest is the wire shape of POST /transactions, validated the same
// way the teacher validates AuthorizeRequest/CaptureRequest before handing
// off to a core service.
type beginRequest struct {
	Type            string         `json:"type" validate:"required,oneof=PAYMENT REFUND CHARGEBACK"`
	AmountMinor     int64          `json:"amount_minor" validate:"required,gt=0"`
	Currency        string         `json:"currency" validate:"required,len=3"`
	CustomerID      string         `json:"customer_id" validate:"required"`
	PaymentMethodID string         `json:"payment_method_id" validate:"required"`
	ProviderRef     string         `json:"provider_ref"`
	Metadata        map[string]any `json:"metadata"`
}

// TransactionHandler exposes spec §6's transaction lifecycle endpoints.
type TransactionHandler struct {
	manager  *service.TransactionManager
	retry    *service.RetryManager
	validate *validator.Validate
}

func NewTransactionHandler(manager *service.TransactionManager, retry *service.RetryManager) *TransactionHandler {
	return &TransactionHandler{manager: manager, retry: retry, validate: validator.New()}
}

func (h *TransactionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /transactions", h.HandleBegin)
	mux.HandleFunc("GET /transactions/{id}", h.HandleGet)
	mux.HandleFunc("GET /transactions/customer/{customerID}", h.HandleQuery)
	mux.HandleFunc("PATCH /transactions/{id}/status", h.HandleUpdateStatus)
	mux.HandleFunc("POST /transactions/{id}/retry", h.HandleManualRetry)
	mux.HandleFunc("DELETE /transactions/{id}/retry", h.HandleCancelRetry)
	mux.HandleFunc("GET /transactions/stats/retry", h.HandleRetryStats)
}

type updateStatusRequest struct {
	Status string                   `json:"status" validate:"required"`
	Error  *domain.TransactionError `json:"error"`
}

// HandleUpdateStatus drives an explicit status transition (spec §6 PATCH
// /transactions/:id/status), the operator/collaborator path distinct from
// the provider webhook and the retry scheduler.
func (h *TransactionHandler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: "invalid transaction id"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, err)
		return
	}
	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: err.Error()})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: err.Error()})
		return
	}

	tx, err := h.manager.UpdateStatus(r.Context(), id, domain.TransactionStatus(req.Status), req.Error)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tx)
}

// HandleCancelRetry cancels a pending retry timer (spec §6 DELETE
// /transactions/:id/retry).
func (h *TransactionHandler) HandleCancelRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: "invalid transaction id"})
		return
	}
	h.retry.CancelRetry(id)
	respondWithJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// HandleRetryStats reports queue depth and due count (spec §6 GET
// /transactions/stats/retry).
func (h *TransactionHandler) HandleRetryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.retry.GetRetryStats(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// HandleBegin admits a new transaction (spec §6 POST /transactions). The
// Idempotency-Key header is required even though the body also carries
// enough to build a fingerprint, mirroring the teacher's header-based
// idempotency convention.
func (h *TransactionHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, err)
		return
	}

	var req beginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: err.Error()})
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey == "" {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: "Idempotency-Key header is required"})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: err.Error()})
		return
	}

	tx, err := h.manager.Begin(r.Context(), service.BeginRequest{
		IdempotencyKey:  idemKey,
		Type:            domain.TransactionType(req.Type),
		Amount:          domain.Money{AmountMinor: req.AmountMinor, Currency: req.Currency},
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		ProviderRef:     req.ProviderRef,
		Metadata:        req.Metadata,
	})
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, tx)
}

func (h *TransactionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: "invalid transaction id"})
		return
	}

	tx, err := h.manager.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tx)
}

// HandleQuery lists a customer's transactions with the optional status/
// type/date/pagination filters spec §6 names.
func (h *TransactionHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")
	filter := domain.QueryFilter{Limit: 50}

	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := domain.TransactionStatus(v)
		filter.Status = &status
	}
	if v := q.Get("type"); v != "" {
		txType := domain.TransactionType(v)
		filter.Type = &txType
	}
	if v := q.Get("start_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartDate = &t
		}
	}
	if v := q.Get("end_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndDate = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	txs, err := h.manager.Query(r.Context(), customerID, filter)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, txs)
}

// HandleManualRetry schedules an operator-triggered retry for a FAILED
// transaction: RetryManager.ScheduleRetry(tx, tx.Error || ManualRetryError)
// (spec §6 POST /transactions/:id/retry), rejecting anything not FAILED.
// The scheduled retry fires through the same executor path as an automatic
// one once its backoff elapses.
func (h *TransactionHandler) HandleManualRetry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: "invalid transaction id"})
		return
	}

	tx, err := h.manager.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if tx.Status != domain.StatusFailed {
		respondWithError(w, domain.NewInvalidStateError(id.String(), tx.Status))
		return
	}
	if tx.Error == nil {
		tx.Error = domain.ManualRetryError()
	}

	if err := h.retry.ScheduleRetry(r.Context(), tx); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, tx)
}
