package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("request x: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrAlreadyProcessed, http.StatusConflict},
		{fmt.Errorf("debit: %w", domain.ErrInsufficientBalance), http.StatusConflict},
		{domain.ErrAccrualInProgress, http.StatusConflict},
		{domain.ErrInvalidProductID, http.StatusBadRequest},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestError_HidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, zerolog.Nop(), errors.New("sqlite: disk I/O error"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "internal error", body["error"])
}

func TestData_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	Data(w, zerolog.Nop(), http.StatusCreated, map[string]int{"n": 1})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Contains(t, body, "data")
	assert.Contains(t, body["metadata"], "timestamp")
}
