// Package consolidation merges raw purchase records into one position per
// investor and product.
package consolidation

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseEntry is one raw purchase row as supplied by the import tooling.
// Identifiers are unvalidated strings; Import resolves them.
type PurchaseEntry struct {
	InvestorID     string          `json:"investor_id"`
	ProductID      string          `json:"product_id"`
	Principal      decimal.Decimal `json:"principal"`
	Units          int64           `json:"units"`
	PurchaseDate   time.Time       `json:"purchase_date"`
	ContractSigned bool            `json:"contract_signed,omitempty"`
	Approved       bool            `json:"approved,omitempty"`
}

// InvalidEntry reports an input row that was skipped.
type InvalidEntry struct {
	Index      int    `json:"index"`
	InvestorID string `json:"investor_id"`
	ProductID  string `json:"product_id"`
	Reason     string `json:"reason"`
}

// PositionSummary is the consolidated state written for one product.
type PositionSummary struct {
	ProductID     string          `json:"product_id"`
	Principal     decimal.Decimal `json:"principal"`
	Units         int64           `json:"units"`
	AccruedIncome decimal.Decimal `json:"accrued_income"`
	Entries       int             `json:"entries"`
	Created       bool            `json:"created"`
}

// InvestorResult is the outcome of one investor's transaction.
type InvestorResult struct {
	InvestorID string            `json:"investor_id"`
	Success    bool              `json:"success"`
	Positions  []PositionSummary `json:"positions,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// ImportResult summarises one import batch.
type ImportResult struct {
	BatchID   string           `json:"batch_id"`
	Investors []InvestorResult `json:"investors"`
	Invalid   []InvalidEntry   `json:"invalid,omitempty"`
}

// Failed counts investors whose transaction rolled back.
func (r *ImportResult) Failed() int {
	n := 0
	for _, inv := range r.Investors {
		if !inv.Success {
			n++
		}
	}
	return n
}
