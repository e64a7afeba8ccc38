// Package handlers exposes withdrawal evaluation, submission and the admin
// approval queue over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/aristath/yieldfund/internal/modules/withdrawals"
	"github.com/aristath/yieldfund/internal/server/respond"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is the withdrawal service as seen by the handlers.
type Service interface {
	Evaluate(ctx context.Context, investorID domain.InvestorID) (*withdrawals.Evaluation, error)
	Submit(ctx context.Context, in withdrawals.SubmitRequest) (*withdrawals.SubmitResult, error)
	Approve(ctx context.Context, requestID, approverID string) (*withdrawals.WithdrawalRequest, error)
	Reject(ctx context.Context, requestID, reason string) (*withdrawals.WithdrawalRequest, error)
	Get(ctx context.Context, requestID string) (*withdrawals.WithdrawalRequest, error)
	ListByInvestor(ctx context.Context, investorID domain.InvestorID, limit int) ([]withdrawals.WithdrawalRequest, error)
	ListPending(ctx context.Context, limit int) ([]withdrawals.WithdrawalRequest, error)
}

// Handler handles withdrawal HTTP requests
type Handler struct {
	service Service
	log     zerolog.Logger
}

// NewHandler creates a new withdrawal handler
func NewHandler(service Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "withdrawals").Logger(),
	}
}

// SubmitBody is the body of POST /api/withdrawals. Amount is a decimal string.
type SubmitBody struct {
	InvestorID        string `json:"investor_id"`
	ProductID         string `json:"product_id"`
	Amount            string `json:"amount"`
	PayoutDestination string `json:"payout_destination"`
}

// ApproveBody is the body of the approve route.
type ApproveBody struct {
	ApproverID string `json:"approver_id"`
}

// RejectBody is the body of the reject route.
type RejectBody struct {
	Reason string `json:"reason"`
}

// HandleEvaluate handles GET /api/withdrawals/evaluate/{investorID}
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	investorID, err := domain.ParseInvestorID(chi.URLParam(r, "investorID"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	eval, err := h.service.Evaluate(r.Context(), investorID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, eval)
}

// HandleSubmit handles POST /api/withdrawals
//
// 201 with the pending request, or 422 with the rejection.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.BadRequest(w, h.log, "invalid request body")
		return
	}

	investorID, err := domain.ParseInvestorID(body.InvestorID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	productID, err := domain.ParseProductID(body.ProductID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	amount, err := domain.ParseAmount(body.Amount)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	result, err := h.service.Submit(r.Context(), withdrawals.SubmitRequest{
		InvestorID:        investorID,
		ProductID:         productID,
		Amount:            amount,
		PayoutDestination: body.PayoutDestination,
	})
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	if !result.Accepted() {
		respond.Data(w, h.log, http.StatusUnprocessableEntity, result)
		return
	}
	respond.Data(w, h.log, http.StatusCreated, result)
}

// HandleGet handles GET /api/withdrawals/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, req)
}

// HandleList handles GET /api/withdrawals?investor_id=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	investorID, err := domain.ParseInvestorID(r.URL.Query().Get("investor_id"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListByInvestor(r.Context(), investorID, limit)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, map[string]any{
		"requests": list,
		"count":    len(list),
	})
}

// HandleListPending handles GET /api/admin/withdrawals/pending
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListPending(r.Context(), limit)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, map[string]any{
		"requests": list,
		"count":    len(list),
	})
}

// HandleApprove handles POST /api/admin/withdrawals/{id}/approve
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	var body ApproveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApproverID == "" {
		respond.BadRequest(w, h.log, "approver_id is required")
		return
	}

	req, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), body.ApproverID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, req)
}

// HandleReject handles POST /api/admin/withdrawals/{id}/reject
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	var body RejectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
		respond.BadRequest(w, h.log, "reason is required")
		return
	}

	req, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.Data(w, h.log, http.StatusOK, req)
}

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		respond.BadRequest(w, h.log, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
