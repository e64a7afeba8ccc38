// Package withdrawals implements the withdrawal evaluator and ledger: eligibility,
// submission with balance reservation, and the approve/reject lifecycle.
package withdrawals

import (
	"time"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/shopspring/decimal"
)

// Status of a withdrawal request. Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// WithdrawalRequest is one withdrawal attempt.
type WithdrawalRequest struct {
	ID                string            `json:"id"`
	InvestorID        domain.InvestorID `json:"investor_id"`
	ProductID         domain.ProductID  `json:"product_id"`
	RequestedAmount   decimal.Decimal   `json:"requested_amount"`
	FeeAmount         decimal.Decimal   `json:"fee_amount"`
	NetAmount         decimal.Decimal   `json:"net_amount"`
	Status            Status            `json:"status"`
	RequestedAt       time.Time         `json:"requested_at"`
	RequestDay        string            `json:"request_day"`
	ProcessedAt       *time.Time        `json:"processed_at,omitempty"`
	PayoutDestination string            `json:"payout_destination"`
	ApproverID        string            `json:"approver_id,omitempty"`
	RejectionReason   string            `json:"rejection_reason,omitempty"`
}

// RejectionCode identifies why a withdrawal is blocked.
type RejectionCode string

const (
	RejectDisabled      RejectionCode = "withdrawals_disabled"
	RejectBelowMinimum  RejectionCode = "below_minimum"
	RejectDailyLimit    RejectionCode = "daily_limit_reached"
	RejectInsufficient  RejectionCode = "insufficient_balance"
	RejectNotEligible   RejectionCode = "position_not_eligible"
	RejectNotFound      RejectionCode = "position_not_found"
	RejectInvalidAmount RejectionCode = "invalid_amount"
)

// DisabledReason is the fixed reason reported for products that never allow withdrawals.
const DisabledReason = "withdrawals disabled for this product"

// Rejection is a user-facing reason a withdrawal cannot proceed.
type Rejection struct {
	Code   RejectionCode `json:"code"`
	Reason string        `json:"reason"`
}

// Eligibility is the evaluator's view of one position.
type Eligibility struct {
	ProductID          domain.ProductID `json:"product_id"`
	Unit               string           `json:"unit"`
	AccruedIncome      decimal.Decimal  `json:"accrued_income"`
	ReservedAmount     decimal.Decimal  `json:"reserved_amount"`
	WithdrawableAmount decimal.Decimal  `json:"withdrawable_amount"`
	MinAmount          decimal.Decimal  `json:"min_amount"`
	Eligible           bool             `json:"eligible"`
	BlockingReasons    []Rejection      `json:"blocking_reasons"`
}

// Evaluation is the withdrawable state of one investor.
type Evaluation struct {
	InvestorID     domain.InvestorID `json:"investor_id"`
	Products       []Eligibility     `json:"products"`
	RequestsToday  int               `json:"requests_today"`
	RemainingToday int               `json:"remaining_today"`
	FeeFree        bool              `json:"fee_free"` // next submission carries no provisional fee
	FeeRate        decimal.Decimal   `json:"fee_rate"`
}

// SubmitRequest asks to withdraw Amount from one position.
type SubmitRequest struct {
	InvestorID        domain.InvestorID
	ProductID         domain.ProductID
	Amount            decimal.Decimal
	PayoutDestination string
}

// SubmitResult carries either the pending request or the rejection.
type SubmitResult struct {
	Request   *WithdrawalRequest `json:"request,omitempty"`
	Rejection *Rejection         `json:"rejection,omitempty"`
}

// Accepted reports whether a request was created.
func (r *SubmitResult) Accepted() bool {
	return r.Request != nil
}
