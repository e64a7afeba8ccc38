package withdrawals

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/yieldfund/internal/database"
	"github.com/aristath/yieldfund/internal/domain"
	"github.com/aristath/yieldfund/internal/events"
	"github.com/aristath/yieldfund/internal/metrics"
	"github.com/aristath/yieldfund/internal/modules/positions"
	"github.com/aristath/yieldfund/internal/modules/rates"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config holds fee and limit settings.
type Config struct {
	FeeRate     decimal.Decimal
	DailyLimit  int
	AmountScale int32          // fees are floored to this many decimal places
	Location    *time.Location // day boundary for the daily limit
}

// Service evaluates, submits and processes withdrawals.
//
// Every balance check runs in the same transaction as the write it guards.
// Transactions are BEGIN IMMEDIATE, so two submissions against the same
// position cannot both read the pre-reservation balance.
type Service struct {
	requests  *Repository
	positions *positions.Repository
	catalog   *rates.Catalog
	events    *events.Manager
	metrics   *metrics.Metrics
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a withdrawal service.
func NewService(
	requests *Repository,
	positionRepo *positions.Repository,
	catalog *rates.Catalog,
	eventManager *events.Manager,
	m *metrics.Metrics,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DailyLimit < 1 {
		cfg.DailyLimit = 1
	}
	return &Service{
		requests:  requests,
		positions: positionRepo,
		catalog:   catalog,
		events:    eventManager,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		log:       log.With().Str("service", "withdrawals").Logger(),
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Fee returns floor(amount * feeRate) at the configured scale.
func (s *Service) Fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.cfg.FeeRate).RoundFloor(s.cfg.AmountScale)
}

// Evaluate reports, per position, how much the investor can withdraw now
// and what blocks it.
func (s *Service) Evaluate(ctx context.Context, investorID domain.InvestorID) (*Evaluation, error) {
	now := s.now()

	held, err := s.positions.ListByInvestor(ctx, investorID)
	if err != nil {
		return nil, err
	}
	today, err := s.requests.CountForDay(ctx, investorID, domain.DayKey(now, s.cfg.Location))
	if err != nil {
		return nil, err
	}
	prior, err := s.requests.CountByStatus(ctx, investorID, "", StatusApproved, StatusPending)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		InvestorID:     investorID,
		Products:       make([]Eligibility, 0, len(held)),
		RequestsToday:  today,
		RemainingToday: max(0, s.cfg.DailyLimit-today),
		FeeFree:        prior == 0,
		FeeRate:        s.cfg.FeeRate,
	}

	for _, pos := range held {
		eval.Products = append(eval.Products, s.eligibility(pos, today))
	}
	return eval, nil
}

func (s *Service) eligibility(pos positions.Position, today int) Eligibility {
	e := Eligibility{
		ProductID:          pos.ProductID,
		AccruedIncome:      pos.AccruedIncome,
		ReservedAmount:     pos.ReservedAmount,
		WithdrawableAmount: decimal.Zero,
		BlockingReasons:    []Rejection{},
	}

	product, ok := s.catalog.Product(pos.ProductID)
	if !ok {
		e.BlockingReasons = append(e.BlockingReasons, Rejection{Code: RejectNotEligible, Reason: "product is not offered"})
		return e
	}
	e.Unit = product.Unit
	e.MinAmount = product.Withdrawal.MinAmount

	if !product.Withdrawal.Enabled {
		e.BlockingReasons = append(e.BlockingReasons, Rejection{Code: RejectDisabled, Reason: DisabledReason})
		return e
	}
	if !pos.Eligible() {
		e.BlockingReasons = append(e.BlockingReasons, notEligible(pos))
		return e
	}

	e.WithdrawableAmount = pos.Available()
	if e.WithdrawableAmount.LessThan(e.MinAmount) {
		e.BlockingReasons = append(e.BlockingReasons, Rejection{
			Code:   RejectBelowMinimum,
			Reason: fmt.Sprintf("withdrawable %s is below the minimum %s", e.WithdrawableAmount, e.MinAmount),
		})
	}
	if today >= s.cfg.DailyLimit {
		e.BlockingReasons = append(e.BlockingReasons, dailyLimit(s.cfg.DailyLimit))
	}
	e.Eligible = len(e.BlockingReasons) == 0
	return e
}

// Submit validates and creates a pending request, reserving the amount on
// the position. Validation failures are returned as a Rejection with a nil
// error; the error is reserved for storage failures.
//
// Checks run in order: product enabled, minimum, daily limit, balance.
func (s *Service) Submit(ctx context.Context, in SubmitRequest) (*SubmitResult, error) {
	result, err := s.submit(ctx, in)
	if err != nil {
		return nil, err
	}

	if result.Rejection != nil {
		s.metrics.IncWithdrawalSubmit(string(result.Rejection.Code))
		s.log.Info().
			Str("investor_id", in.InvestorID.String()).
			Str("product_id", in.ProductID.String()).
			Str("amount", in.Amount.String()).
			Str("code", string(result.Rejection.Code)).
			Msg("Withdrawal rejected at submission")
		return result, nil
	}

	req := result.Request
	s.metrics.IncWithdrawalSubmit("accepted")
	s.events.Emit(ctx, "withdrawals", withdrawalEvent(events.WithdrawalRequested, req))
	s.log.Info().
		Str("request_id", req.ID).
		Str("investor_id", req.InvestorID.String()).
		Str("product_id", req.ProductID.String()).
		Str("amount", req.RequestedAmount.String()).
		Str("fee", req.FeeAmount.String()).
		Msg("Withdrawal requested")
	return result, nil
}

func (s *Service) submit(ctx context.Context, in SubmitRequest) (*SubmitResult, error) {
	if !in.Amount.IsPositive() {
		return rejected(RejectInvalidAmount, "amount must be positive"), nil
	}
	if !domain.FitsScale(in.Amount, s.cfg.AmountScale) {
		return rejected(RejectInvalidAmount, fmt.Sprintf("amount has more than %d decimal places", s.cfg.AmountScale)), nil
	}

	product, ok := s.catalog.Product(in.ProductID)
	if !ok {
		return rejected(RejectNotFound, fmt.Sprintf("product %s is not offered", in.ProductID)), nil
	}
	if !product.Withdrawal.Enabled {
		return rejected(RejectDisabled, DisabledReason), nil
	}
	if in.Amount.LessThan(product.Withdrawal.MinAmount) {
		return rejected(RejectBelowMinimum, fmt.Sprintf("minimum withdrawal is %s %s", product.Withdrawal.MinAmount, product.Unit)), nil
	}

	now := s.now()
	day := domain.DayKey(now, s.cfg.Location)
	var result *SubmitResult

	err := database.WithTransaction(ctx, s.requests.DB(), func(tx *sql.Tx) error {
		requests := s.requests.WithTx(tx)
		positionRepo := s.positions.WithTx(tx)

		today, err := requests.CountForDay(ctx, in.InvestorID, day)
		if err != nil {
			return err
		}
		if today >= s.cfg.DailyLimit {
			r := dailyLimit(s.cfg.DailyLimit)
			result = &SubmitResult{Rejection: &r}
			return nil
		}

		pos, err := positionRepo.GetByKey(ctx, in.InvestorID, in.ProductID)
		if err != nil {
			return err
		}
		if pos == nil {
			result = rejected(RejectNotFound, fmt.Sprintf("no position in %s", in.ProductID))
			return nil
		}
		if !pos.Eligible() {
			r := notEligible(*pos)
			result = &SubmitResult{Rejection: &r}
			return nil
		}
		if in.Amount.GreaterThan(pos.Available()) {
			result = rejected(RejectInsufficient, fmt.Sprintf("requested %s exceeds withdrawable %s", in.Amount, pos.Available()))
			return nil
		}

		prior, err := requests.CountByStatus(ctx, in.InvestorID, "", StatusApproved, StatusPending)
		if err != nil {
			return err
		}
		fee := decimal.Zero
		if prior > 0 {
			fee = s.Fee(in.Amount)
		}

		if err := positionRepo.Reserve(ctx, pos, in.Amount, now); err != nil {
			return err
		}

		req := &WithdrawalRequest{
			ID:                ulid.Make().String(),
			InvestorID:        in.InvestorID,
			ProductID:         in.ProductID,
			RequestedAmount:   in.Amount,
			FeeAmount:         fee,
			NetAmount:         in.Amount.Sub(fee),
			Status:            StatusPending,
			RequestedAt:       time.Unix(now.Unix(), 0).UTC(),
			RequestDay:        day,
			PayoutDestination: in.PayoutDestination,
		}
		if err := requests.Insert(ctx, req); err != nil {
			return err
		}
		result = &SubmitResult{Request: req}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("withdrawal submission failed: %w", err)
	}
	return result, nil
}

// Approve debits the position and finalises the fee. The balance is
// re-checked in the approving transaction; domain.ErrInsufficientBalance is
// returned instead of truncating, and the request stays pending.
func (s *Service) Approve(ctx context.Context, requestID, approverID string) (*WithdrawalRequest, error) {
	now := s.now()
	var approved *WithdrawalRequest

	err := database.WithTransaction(ctx, s.requests.DB(), func(tx *sql.Tx) error {
		requests := s.requests.WithTx(tx)
		positionRepo := s.positions.WithTx(tx)

		req, err := pendingRequest(ctx, requests, requestID)
		if err != nil {
			return err
		}

		pos, err := positionRepo.GetByKey(ctx, req.InvestorID, req.ProductID)
		if err != nil {
			return err
		}
		if pos == nil {
			return fmt.Errorf("position %s/%s: %w", req.InvestorID, req.ProductID, domain.ErrNotFound)
		}
		if req.RequestedAmount.GreaterThan(pos.AccruedIncome) {
			return fmt.Errorf("request %s needs %s, accrued %s: %w",
				req.ID, req.RequestedAmount, pos.AccruedIncome, domain.ErrInsufficientBalance)
		}

		// The investor's first approved withdrawal is free, whichever was submitted first.
		approvedBefore, err := requests.CountByStatus(ctx, req.InvestorID, req.ID, StatusApproved)
		if err != nil {
			return err
		}
		fee := decimal.Zero
		if approvedBefore > 0 {
			fee = s.Fee(req.RequestedAmount)
		}

		if err := positionRepo.Debit(ctx, pos, req.RequestedAmount, now); err != nil {
			return err
		}
		if err := requests.MarkApproved(ctx, req.ID, fee, req.RequestedAmount.Sub(fee), approverID, now); err != nil {
			return err
		}

		processed := time.Unix(now.Unix(), 0).UTC()
		req.Status = StatusApproved
		req.FeeAmount = fee
		req.NetAmount = req.RequestedAmount.Sub(fee)
		req.ApproverID = approverID
		req.ProcessedAt = &processed
		approved = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncWithdrawalProcessed(string(StatusApproved))
	s.events.Emit(ctx, "withdrawals", withdrawalEvent(events.WithdrawalApproved, approved))
	s.log.Info().
		Str("request_id", approved.ID).
		Str("investor_id", approved.InvestorID.String()).
		Str("product_id", approved.ProductID.String()).
		Str("amount", approved.RequestedAmount.String()).
		Str("fee", approved.FeeAmount.String()).
		Str("net", approved.NetAmount.String()).
		Str("approver_id", approverID).
		Msg("Withdrawal approved")
	return approved, nil
}

// Reject closes a pending request and releases its reservation. The
// position's accrued income is not touched.
func (s *Service) Reject(ctx context.Context, requestID, reason string) (*WithdrawalRequest, error) {
	now := s.now()
	var rejectedReq *WithdrawalRequest

	err := database.WithTransaction(ctx, s.requests.DB(), func(tx *sql.Tx) error {
		requests := s.requests.WithTx(tx)
		positionRepo := s.positions.WithTx(tx)

		req, err := pendingRequest(ctx, requests, requestID)
		if err != nil {
			return err
		}

		pos, err := positionRepo.GetByKey(ctx, req.InvestorID, req.ProductID)
		if err != nil {
			return err
		}
		if pos != nil {
			if err := positionRepo.Release(ctx, pos, req.RequestedAmount, now); err != nil {
				return err
			}
		}
		if err := requests.MarkRejected(ctx, req.ID, reason, now); err != nil {
			return err
		}

		processed := time.Unix(now.Unix(), 0).UTC()
		req.Status = StatusRejected
		req.RejectionReason = reason
		req.ProcessedAt = &processed
		rejectedReq = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncWithdrawalProcessed(string(StatusRejected))
	s.events.Emit(ctx, "withdrawals", withdrawalEvent(events.WithdrawalRejected, rejectedReq))
	s.log.Info().
		Str("request_id", rejectedReq.ID).
		Str("investor_id", rejectedReq.InvestorID.String()).
		Str("reason", reason).
		Msg("Withdrawal rejected")
	return rejectedReq, nil
}

// Get returns one request or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, requestID string) (*WithdrawalRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("withdrawal request %s: %w", requestID, domain.ErrNotFound)
	}
	return req, nil
}

// ListByInvestor returns an investor's requests, newest first.
func (s *Service) ListByInvestor(ctx context.Context, investorID domain.InvestorID, limit int) ([]WithdrawalRequest, error) {
	return s.requests.ListByInvestor(ctx, investorID, limit)
}

// ListPending returns requests awaiting an admin decision, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]WithdrawalRequest, error) {
	return s.requests.ListPending(ctx, limit)
}

func pendingRequest(ctx context.Context, requests *Repository, id string) (*WithdrawalRequest, error) {
	req, err := requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("withdrawal request %s: %w", id, domain.ErrNotFound)
	}
	if req.Status != StatusPending {
		return nil, fmt.Errorf("withdrawal request %s is %s: %w", id, req.Status, domain.ErrAlreadyProcessed)
	}
	return req, nil
}

func rejected(code RejectionCode, reason string) *SubmitResult {
	return &SubmitResult{Rejection: &Rejection{Code: code, Reason: reason}}
}

func dailyLimit(limit int) Rejection {
	return Rejection{Code: RejectDailyLimit, Reason: fmt.Sprintf("daily limit of %d withdrawal requests reached", limit)}
}

func notEligible(pos positions.Position) Rejection {
	switch {
	case !pos.ContractSigned && !pos.Approved:
		return Rejection{Code: RejectNotEligible, Reason: "contract not signed and position not approved"}
	case !pos.ContractSigned:
		return Rejection{Code: RejectNotEligible, Reason: "contract not signed"}
	default:
		return Rejection{Code: RejectNotEligible, Reason: "position not approved"}
	}
}

func withdrawalEvent(t events.EventType, req *WithdrawalRequest) *events.WithdrawalData {
	return &events.WithdrawalData{
		Type:            t,
		RequestID:       req.ID,
		InvestorID:      req.InvestorID.String(),
		ProductID:       req.ProductID.String(),
		RequestedAmount: req.RequestedAmount.String(),
		FeeAmount:       req.FeeAmount.String(),
		NetAmount:       req.NetAmount.String(),
		ApproverID:      req.ApproverID,
		Reason:          req.RejectionReason,
	}
}
