// Package handlers exposes the accrual batch trigger over HTTP.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aristath/yieldfund/internal/modules/accrual"
	"github.com/aristath/yieldfund/internal/server/respond"
	"github.com/rs/zerolog"
)

// Engine is the accrual engine as seen by the handlers.
type Engine interface {
	RunCycle(ctx context.Context, opts accrual.RunOptions) (*accrual.CycleResult, error)
	ListRuns(ctx context.Context, limit int) ([]accrual.CycleResult, error)
}

// Handler handles accrual HTTP requests
type Handler struct {
	engine Engine
	log    zerolog.Logger
}

// NewHandler creates a new accrual handler
func NewHandler(engine Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "accrual").Logger(),
	}
}

// Statistics are the counters of one cycle.
type Statistics struct {
	Processed  int `json:"processed"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	ErrorCount int `json:"errorCount"`
}

// TriggerResponse is the batch trigger reply.
type TriggerResponse struct {
	Success    bool       `json:"success"`
	RunID      string     `json:"runId,omitempty"`
	Manual     bool       `json:"manual"`
	DurationMs int64      `json:"durationMs"`
	Statistics Statistics `json:"statistics"`
	Errors     []string   `json:"errors,omitempty"`
}

// HandleTrigger handles POST /api/batch/accrual
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	manual := false
	if v := r.URL.Query().Get("manual"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respond.BadRequest(w, h.log, "manual must be a boolean")
			return
		}
		manual = parsed
	}

	result, err := h.engine.RunCycle(r.Context(), accrual.RunOptions{Manual: manual, Trigger: accrual.TriggerAPI})
	if err != nil {
		status := respond.StatusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Accrual cycle failed")
		}
		respond.JSON(w, h.log, status, TriggerResponse{Success: false, Manual: manual, Errors: []string{err.Error()}})
		return
	}

	respond.JSON(w, h.log, http.StatusOK, TriggerResponse{
		Success:    true,
		RunID:      result.RunID,
		Manual:     result.Manual,
		DurationMs: result.Duration().Milliseconds(),
		Statistics: Statistics{
			Processed:  result.Processed,
			Updated:    result.Updated,
			Skipped:    result.Skipped,
			ErrorCount: result.ErrorCount(),
		},
		Errors: result.Errors,
	})
}

// HandleListRuns handles GET /api/batch/accrual/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.BadRequest(w, h.log, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.engine.ListRuns(r.Context(), limit)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}
