// Package handlers exposes position reads and the admin flag routes over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/aristath/yieldfund/internal/modules/positions"
	"github.com/aristath/yieldfund/internal/server/respond"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is the position service as seen by the handlers.
type Service interface {
	ListByInvestor(ctx context.Context, investorID domain.InvestorID) ([]positions.Position, error)
	MarkContractSigned(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID, signed bool) error
	MarkApproved(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID, approved bool) error
}

// Handler handles position HTTP requests
type Handler struct {
	service Service
	log     zerolog.Logger
}

// NewHandler creates a new position handler
func NewHandler(service Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "positions").Logger(),
	}
}

// FlagBody is the body of the contract and approval routes.
type FlagBody struct {
	Value *bool `json:"value"`
}

// HandleList handles GET /api/positions/{investorID}
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	investorID, err := domain.ParseInvestorID(chi.URLParam(r, "investorID"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	list, err := h.service.ListByInvestor(r.Context(), investorID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, map[string]any{
		"positions": list,
		"count":     len(list),
	})
}

// HandleContract handles POST /api/admin/positions/{investorID}/{productID}/contract
func (h *Handler) HandleContract(w http.ResponseWriter, r *http.Request) {
	h.handleFlag(w, r, "contract_signed", h.service.MarkContractSigned)
}

// HandleApproval handles POST /api/admin/positions/{investorID}/{productID}/approval
func (h *Handler) HandleApproval(w http.ResponseWriter, r *http.Request) {
	h.handleFlag(w, r, "approved", h.service.MarkApproved)
}

type flagSetter func(ctx context.Context, investorID domain.InvestorID, productID domain.ProductID, value bool) error

func (h *Handler) handleFlag(w http.ResponseWriter, r *http.Request, flag string, set flagSetter) {
	investorID, err := domain.ParseInvestorID(chi.URLParam(r, "investorID"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	productID, err := domain.ParseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	var body FlagBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		respond.BadRequest(w, h.log, "value is required")
		return
	}

	if err := set(r.Context(), investorID, productID, *body.Value); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, map[string]any{
		"investor_id": investorID,
		"product_id":  productID,
		flag:          *body.Value,
	})
}
