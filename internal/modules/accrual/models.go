// Package accrual implements the batch sweep that adds each period's yield to
// eligible positions.
package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mode selects how many days one cycle applies.
type Mode string

const (
	// ModeDaily applies exactly one day per cycle, regardless of time elapsed.
	ModeDaily Mode = "daily"
	// ModeElapsed applies the calendar days since the last accrual, capped.
	ModeElapsed Mode = "elapsed"
)

// LockName is the lease guarding cycles across processes.
const LockName = "daily-accrual"

// Triggers recorded on runs.
const (
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
)

// Config tunes the engine.
type Config struct {
	Mode           Mode
	MaxCatchUpDays int
	Epsilon        decimal.Decimal // deltas with smaller absolute value are not written
	AmountScale    int32
	Location       *time.Location // accrual period boundary
	LockTTL        time.Duration
}

// RunOptions describe who started a cycle. Manual only affects auditing.
type RunOptions struct {
	Manual  bool
	Trigger string
}

// CycleResult is the outcome of one cycle.
type CycleResult struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	Manual     bool      `json:"manual"`
	Mode       Mode      `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Processed  int       `json:"processed"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Errors     []string  `json:"errors,omitempty"`
}

// ErrorCount is the number of positions that failed.
func (r *CycleResult) ErrorCount() int {
	return len(r.Errors)
}

// Duration of the cycle.
func (r *CycleResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
