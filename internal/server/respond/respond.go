// Package respond writes the JSON envelopes shared by every API handler.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/rs/zerolog"
)

// Envelope wraps data with response metadata.
func Envelope(data any) map[string]any {
	return map[string]any{
		"data": data,
		"metadata": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, log zerolog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Data writes v inside the standard envelope.
func Data(w http.ResponseWriter, log zerolog.Logger, status int, v any) {
	JSON(w, log, status, Envelope(v))
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrAccrualInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidProductID),
		errors.Is(err, domain.ErrInvalidInvestorID),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownProduct):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error": message}. Internal errors are logged and
// their details are not exposed.
func Error(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		msg = "internal error"
	}
	JSON(w, log, status, map[string]string{"error": msg})
}

// BadRequest writes a 400 with msg.
func BadRequest(w http.ResponseWriter, log zerolog.Logger, msg string) {
	JSON(w, log, http.StatusBadRequest, map[string]string{"error": msg})
}
