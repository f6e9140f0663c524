package httpapi

import (
	"net/http"

	"github.com/ficmart/txengine/internal/core/domain"
	"github.com/ficmart/txengine/internal/core/service"
	"github.com/google/uuid"
)

// DeadLetterHandler exposes the dead-letter queue's read model and its
// operator-triggered reprocess action, grounded on the teacher's analytics-
// style read endpoints.
type DeadLetterHandler struct {
	recovery *service.RecoveryManager
}

func NewDeadLetterHandler(recovery *service.RecoveryManager) *DeadLetterHandler {
	return &DeadLetterHandler{recovery: recovery}
}

func (h *DeadLetterHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /transactions/stats/dlq", h.HandleStats)
	mux.HandleFunc("POST /transactions/{id}/reprocess", h.HandleReprocess)
}

func (h *DeadLetterHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recovery.GetDeadLetterQueueStats(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *DeadLetterHandler) HandleReprocess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondWithError(w, &domain.DomainError{Code: "VALIDATION_ERROR", Kind: domain.KindValidation, Message: "invalid transaction id"})
		return
	}
	if err := h.recovery.ReprocessFromDeadLetter(r.Context(), id); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"reprocessing": true})
}
