package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the read routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/positions/{investorID}", h.HandleList)
}

// RegisterAdminRoutes registers the flag routes. Mount behind the admin credential.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/positions/{investorID}/{productID}", func(r chi.Router) {
		r.Post("/contract", h.HandleContract)
		r.Post("/approval", h.HandleApproval)
	})
}
