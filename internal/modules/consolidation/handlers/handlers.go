// Package handlers exposes the purchase import over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aristath/yieldfund/internal/modules/consolidation"
	"github.com/aristath/yieldfund/internal/server/respond"
	"github.com/rs/zerolog"
)

const maxImportBody = 32 << 20

// Importer consolidates purchase entries.
type Importer interface {
	Import(ctx context.Context, entries []consolidation.PurchaseEntry) (*consolidation.ImportResult, error)
}

// Handler handles consolidation HTTP requests
type Handler struct {
	importer Importer
	log      zerolog.Logger
}

// NewHandler creates a new consolidation handler
func NewHandler(importer Importer, log zerolog.Logger) *Handler {
	return &Handler{
		importer: importer,
		log:      log.With().Str("handler", "consolidation").Logger(),
	}
}

// ImportRequest is the body of POST /api/consolidation/import.
type ImportRequest struct {
	Entries []consolidation.PurchaseEntry `json:"entries"`
}

// HandleImport handles POST /api/consolidation/import
//
// Responds 200 even when some investors failed; the per-investor summary
// carries the outcome.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBody)).Decode(&req); err != nil {
		h.log.Warn().Err(err).Msg("Failed to decode import body")
		respond.BadRequest(w, h.log, "invalid request body")
		return
	}
	if len(req.Entries) == 0 {
		respond.BadRequest(w, h.log, "entries are required")
		return
	}

	result, err := h.importer.Import(r.Context(), req.Entries)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	respond.Data(w, h.log, http.StatusOK, map[string]any{
		"batch_id":  result.BatchID,
		"investors": result.Investors,
		"invalid":   result.Invalid,
		"succeeded": len(result.Investors) - result.Failed(),
		"failed":    result.Failed(),
	})
}
