package domain

import "errors"

var (
	// ErrNotFound is returned when a position or withdrawal request does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance is returned when a debit would exceed accrued income.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAlreadyProcessed is returned when approve/reject targets a terminal request.
	ErrAlreadyProcessed = errors.New("withdrawal request already processed")
	// ErrAccrualInProgress is returned when another accrual cycle holds the lock.
	ErrAccrualInProgress = errors.New("accrual cycle already in progress")
	// ErrInvalidProductID is returned for malformed product identifiers.
	ErrInvalidProductID = errors.New("invalid product id")
	// ErrInvalidInvestorID is returned for malformed investor keys.
	ErrInvalidInvestorID = errors.New("invalid investor id")
	// ErrInvalidAmount is returned for unparsable or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrUnknownProduct is returned when a product is not in the catalog.
	ErrUnknownProduct = errors.New("unknown product")
)
