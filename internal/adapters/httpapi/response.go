package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ficmart/txengine/internal/core/domain"
)

// APIResponse is the envelope every endpoint responds with, the same
// success/data/error shape as the teacher's handler.APIResponse.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{Success: status >= 200 && status < 300}
	if response.Success {
		response.Data = data
	} else if apiErr, ok := data.(*APIError); ok {
		response.Error = apiErr
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondWithError maps a domain.ErrorKind to an HTTP status, the one place
// spec §7's error taxonomy becomes a wire-level status code.
func respondWithError(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError
	code := "INTERNAL_ERROR"
	message := err.Error()
	status := http.StatusInternalServerError

	if errors.As(err, &domainErr) {
		code = domainErr.Code
		message = domainErr.Message
		status = statusForKind(domainErr.Kind)
	}

	respondWithJSON(w, status, &APIError{Code: code, Message: message})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindProviderComm:
		return http.StatusBadGateway
	case domain.KindDeclined:
		return http.StatusPaymentRequired
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindLock:
		return http.StatusConflict
	case domain.KindDatabase, domain.KindConfig, domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
