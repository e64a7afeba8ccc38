package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the batch routes. Mount behind the batch credential.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/batch/accrual", func(r chi.Router) {
		r.Post("/", h.HandleTrigger)
		r.Get("/runs", h.HandleListRuns)
	})
}
