package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/aristath/yieldfund/internal/modules/accrual"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	opts   accrual.RunOptions
	result *accrual.CycleResult
	runs   []accrual.CycleResult
	err    error
}

func (f *fakeEngine) RunCycle(ctx context.Context, opts accrual.RunOptions) (*accrual.CycleResult, error) {
	f.opts = opts
	return f.result, f.err
}

func (f *fakeEngine) ListRuns(ctx context.Context, limit int) ([]accrual.CycleResult, error) {
	return f.runs, f.err
}

func newRouter(engine Engine) *chi.Mux {
	h := NewHandler(engine, zerolog.New(nil).Level(zerolog.Disabled))
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleTrigger(t *testing.T) {
	start := time.Date(2026, 6, 10, 0, 5, 0, 0, time.UTC)
	engine := &fakeEngine{result: &accrual.CycleResult{
		RunID:      "run-1",
		Manual:     true,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Processed:  3,
		Updated:    2,
		Skipped:    0,
		Errors:     []string{"position 7 (legacy-1): unknown product"},
	}}

	req := httptest.NewRequest(http.MethodPost, "/batch/accrual/?manual=true", nil)
	w := httptest.NewRecorder()
	newRouter(engine).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, engine.opts.Manual)
	assert.Equal(t, accrual.TriggerAPI, engine.opts.Trigger)

	var resp TriggerResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, Statistics{Processed: 3, Updated: 2, Skipped: 0, ErrorCount: 1}, resp.Statistics)
	assert.Equal(t, int64(1500), resp.DurationMs)
	assert.Len(t, resp.Errors, 1)
}

func TestHandleTrigger_Errors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		err    error
		status int
	}{
		{"lock held", "", domain.ErrAccrualInProgress, http.StatusConflict},
		{"store down", "", errors.New("database is locked"), http.StatusInternalServerError},
		{"bad flag", "?manual=maybe", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{err: tt.err, result: &accrual.CycleResult{}}
			req := httptest.NewRequest(http.MethodPost, "/batch/accrual/"+tt.query, nil)
			w := httptest.NewRecorder()
			newRouter(engine).ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandleListRuns(t *testing.T) {
	engine := &fakeEngine{runs: []accrual.CycleResult{{RunID: "b"}, {RunID: "a"}}}

	req := httptest.NewRequest(http.MethodGet, "/batch/accrual/runs?limit=5", nil)
	w := httptest.NewRecorder()
	newRouter(engine).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Runs  []accrual.CycleResult `json:"runs"`
			Count int                   `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Data.Count)
	assert.Equal(t, "b", resp.Data.Runs[0].RunID)
}
