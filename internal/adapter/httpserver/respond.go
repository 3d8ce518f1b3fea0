package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"carmarket/internal/identity"
	"carmarket/internal/listing/domain"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response body", zap.Error(err))
	}
}

// writeError maps domain and identity errors onto HTTP statuses. Remote
// collaborator failures come back as 502 and are flagged retryable so
// the client can distinguish "try again" from "fix your request".
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := http.StatusInternalServerError
	retryable := false

	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrTooManyImages),
		errors.Is(err, identity.ErrInvalidPhone):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, identity.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrFavoriteNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRepository),
		errors.Is(err, domain.ErrImageUpload),
		errors.Is(err, identity.ErrProviderUnavailable):
		status = http.StatusBadGateway
		retryable = true
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("operation", operation),
			zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		h.logger.Debug("Request rejected", zap.String("operation", operation),
			zap.Int("status", status), zap.Error(err))
	}
	h.metrics.APIErrorsTotal.WithLabelValues(operation, http.StatusText(status)).Inc()

	h.writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: retryable})
}
