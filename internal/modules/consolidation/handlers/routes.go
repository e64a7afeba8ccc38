package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the import route. Mount behind the batch credential.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/consolidation/import", h.HandleImport)
}
