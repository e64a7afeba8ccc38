package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the investor-facing routes. submitMiddleware
// wraps only the submit route (rate limiting).
func (h *Handler) RegisterRoutes(r chi.Router, submitMiddleware ...func(http.Handler) http.Handler) {
	r.Route("/withdrawals", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.With(submitMiddleware...).Post("/", h.HandleSubmit)
		r.Get("/evaluate/{investorID}", h.HandleEvaluate)
		r.Get("/{id}", h.HandleGet)
	})
}

// RegisterAdminRoutes registers the approval queue. Mount behind the admin credential.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/withdrawals", func(r chi.Router) {
		r.Get("/pending", h.HandleListPending)
		r.Post("/{id}/approve", h.HandleApprove)
		r.Post("/{id}/reject", h.HandleReject)
	})
}
