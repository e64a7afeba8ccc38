// Package events provides event management functionality.
package events

// EventType represents different event types
type EventType string

const (
	WithdrawalRequested    EventType = "WITHDRAWAL_REQUESTED"
	WithdrawalApproved     EventType = "WITHDRAWAL_APPROVED"
	WithdrawalRejected     EventType = "WITHDRAWAL_REJECTED"
	AccrualCompleted       EventType = "ACCRUAL_COMPLETED"
	ConsolidationCompleted EventType = "CONSOLIDATION_COMPLETED"
	PositionFlagChanged    EventType = "POSITION_FLAG_CHANGED"
)
