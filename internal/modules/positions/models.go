// Package positions provides the position store: one row per investor and
// product holding principal, units and accrued-but-unwithdrawn income.
package positions

import (
	"time"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/shopspring/decimal"
)

// Position is an investor's consolidated holding in one product.
type Position struct {
	ID             int64             `json:"id"`
	InvestorID     domain.InvestorID `json:"investor_id"`
	ProductID      domain.ProductID  `json:"product_id"`
	Principal      decimal.Decimal   `json:"principal"`
	Units          int64             `json:"units"`
	AccruedIncome  decimal.Decimal   `json:"accrued_income"`
	ReservedAmount decimal.Decimal   `json:"reserved_amount"` // held by pending withdrawals
	LastAccrualAt  *time.Time        `json:"last_accrual_at,omitempty"`
	ContractSigned bool              `json:"contract_signed"`
	Approved       bool              `json:"approved"`
	ImportBatchID  string            `json:"import_batch_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Eligible reports whether the position may accrue and be withdrawn from.
func (p Position) Eligible() bool {
	return p.ContractSigned && p.Approved
}

// Available is accrued income not yet claimed by a pending withdrawal.
func (p Position) Available() decimal.Decimal {
	avail := p.AccruedIncome.Sub(p.ReservedAmount)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Key identifies a position.
type Key struct {
	InvestorID domain.InvestorID
	ProductID  domain.ProductID
}

func (k Key) String() string {
	return k.InvestorID.String() + "/" + k.ProductID.String()
}
