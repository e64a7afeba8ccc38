package testing

import (
	"database/sql"
	"testing"
	"time"
)

// PositionFixture describes a positions row inserted directly with SQL.
// Zero values mean: principal/accrued "0", no last accrual, unsigned and unapproved.
type PositionFixture struct {
	InvestorID     string
	ProductID      string
	Principal      string
	Units          int64
	AccruedIncome  string
	ReservedAmount string
	LastAccrualAt  *time.Time
	ContractSigned bool
	Approved       bool
}

// Eligible marks the fixture as signed and approved.
func (f PositionFixture) Eligible() PositionFixture {
	f.ContractSigned = true
	f.Approved = true
	return f
}

// InsertPosition writes the fixture and returns its row id.
func InsertPosition(t *testing.T, db *sql.DB, f PositionFixture) int64 {
	t.Helper()

	principal := orZero(f.Principal)
	accrued := orZero(f.AccruedIncome)
	reserved := orZero(f.ReservedAmount)

	var lastAccrual sql.NullInt64
	if f.LastAccrualAt != nil {
		lastAccrual = sql.NullInt64{Int64: f.LastAccrualAt.Unix(), Valid: true}
	}

	now := time.Now().Unix()
	res, err := db.Exec(`
		INSERT INTO positions (investor_id, product_id, principal, units, accrued_income,
			reserved_amount, last_accrual_at, contract_signed, approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.InvestorID, f.ProductID, principal, f.Units, accrued, reserved, lastAccrual,
		boolToInt(f.ContractSigned), boolToInt(f.Approved), now, now)
	if err != nil {
		t.Fatalf("Failed to insert position fixture %s/%s: %v", f.InvestorID, f.ProductID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read position fixture id: %v", err)
	}
	return id
}

// WithdrawalFixture describes a withdrawal_requests row inserted directly with SQL.
type WithdrawalFixture struct {
	ID          string
	InvestorID  string
	ProductID   string
	Amount      string
	Fee         string
	Status      string
	RequestedAt time.Time
	RequestDay  string
}

// InsertWithdrawal writes the fixture. Defaults: status pending, requested now,
// request day derived from RequestedAt in UTC.
func InsertWithdrawal(t *testing.T, db *sql.DB, f WithdrawalFixture) {
	t.Helper()

	if f.Status == "" {
		f.Status = "pending"
	}
	if f.RequestedAt.IsZero() {
		f.RequestedAt = time.Now()
	}
	if f.RequestDay == "" {
		f.RequestDay = f.RequestedAt.UTC().Format("2006-01-02")
	}
	fee := orZero(f.Fee)

	var processedAt sql.NullInt64
	if f.Status != "pending" {
		processedAt = sql.NullInt64{Int64: f.RequestedAt.Unix(), Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO withdrawal_requests (id, investor_id, product_id, requested_amount, fee_amount,
			net_amount, status, requested_at, request_day, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.InvestorID, f.ProductID, f.Amount, fee, f.Amount, f.Status,
		f.RequestedAt.Unix(), f.RequestDay, processedAt)
	if err != nil {
		t.Fatalf("Failed to insert withdrawal fixture %s: %v", f.ID, err)
	}
}

// AccruedIncome reads the stored accrued_income of a position.
func AccruedIncome(t *testing.T, db *sql.DB, investorID, productID string) string {
	t.Helper()

	var accrued string
	err := db.QueryRow(`SELECT accrued_income FROM positions WHERE investor_id = ? AND product_id = ?`,
		investorID, productID).Scan(&accrued)
	if err != nil {
		t.Fatalf("Failed to read accrued income for %s/%s: %v", investorID, productID, err)
	}
	return accrued
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
