package accrual

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/yieldfund/internal/database"
	"github.com/aristath/yieldfund/internal/domain"
	"github.com/aristath/yieldfund/internal/events"
	"github.com/aristath/yieldfund/internal/locking"
	"github.com/aristath/yieldfund/internal/metrics"
	"github.com/aristath/yieldfund/internal/modules/positions"
	"github.com/aristath/yieldfund/internal/modules/rates"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeSkipped
)

// Engine runs accrual cycles.
//
// Cycles are single-flight at two levels: concurrent callers in this process
// share one in-flight cycle, and a lease in the locker rejects a cycle
// started by another process. Each position is additionally guarded by its
// last_accrual_at so a repeated cycle in the same period changes nothing.
type Engine struct {
	repo    *positions.Repository
	runs    *RunRepository
	catalog *rates.Catalog
	locker  locking.Locker
	events  *events.Manager
	metrics *metrics.Metrics
	cfg     Config
	group   singleflight.Group
	now     func() time.Time
	log     zerolog.Logger
}

// NewEngine creates an accrual engine.
func NewEngine(
	repo *positions.Repository,
	runs *RunRepository,
	catalog *rates.Catalog,
	locker locking.Locker,
	eventManager *events.Manager,
	m *metrics.Metrics,
	cfg Config,
	log zerolog.Logger,
) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = ModeDaily
	}
	if cfg.MaxCatchUpDays < 1 {
		cfg.MaxCatchUpDays = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Engine{
		repo:    repo,
		runs:    runs,
		catalog: catalog,
		locker:  locker,
		events:  eventManager,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("service", "accrual").Logger(),
	}
}

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// RunCycle sweeps all eligible positions once. Failures of individual
// positions are collected in the result. A returned error means the cycle
// did not run: the lock was held elsewhere (domain.ErrAccrualInProgress) or
// the store was unavailable.
//
// The sweep is not cancelled with ctx once started; it finishes its rows.
//
// A call that arrives while a cycle is already running in this process joins
// it. The returned result then carries the caller's own Trigger and Manual;
// the stored run record keeps those of the call that started it.
func (e *Engine) RunCycle(ctx context.Context, opts RunOptions) (*CycleResult, error) {
	if opts.Trigger == "" {
		opts.Trigger = TriggerSchedule
		if opts.Manual {
			opts.Trigger = TriggerAPI
		}
	}

	v, err, shared := e.group.Do(LockName, func() (interface{}, error) {
		return e.runCycle(context.WithoutCancel(ctx), opts)
	})
	if err != nil {
		return nil, err
	}

	res := *v.(*CycleResult)
	res.Errors = append([]string(nil), res.Errors...)
	if shared {
		e.log.Debug().
			Str("trigger", opts.Trigger).
			Str("run_id", res.RunID).
			Msg("Joined in-flight accrual cycle")
		res.Trigger = opts.Trigger
		res.Manual = opts.Manual
	}
	return &res, nil
}

// ListRuns returns recent cycle records, newest first.
func (e *Engine) ListRuns(ctx context.Context, limit int) ([]CycleResult, error) {
	return e.runs.List(ctx, limit)
}

func (e *Engine) runCycle(ctx context.Context, opts RunOptions) (*CycleResult, error) {
	started := e.now()

	lease, err := e.locker.Acquire(ctx, LockName, e.cfg.LockTTL)
	if err != nil {
		e.metrics.ObserveAccrualCycle(opts.Trigger, false, 0, 0, 0, e.now().Sub(started))
		if errors.Is(err, locking.ErrLockHeld) {
			e.log.Warn().Str("trigger", opts.Trigger).Msg("Accrual cycle already running elsewhere")
			return nil, fmt.Errorf("%w: %v", domain.ErrAccrualInProgress, err)
		}
		return nil, fmt.Errorf("failed to acquire accrual lock: %w", err)
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			e.log.Error().Err(err).Msg("Failed to release accrual lock")
		}
	}()

	candidates, err := e.repo.ListAccrualCandidates(ctx)
	if err != nil {
		e.metrics.ObserveAccrualCycle(opts.Trigger, false, 0, 0, 0, e.now().Sub(started))
		return nil, fmt.Errorf("failed to load accrual candidates: %w", err)
	}

	res := &CycleResult{
		RunID:     uuid.NewString(),
		Trigger:   opts.Trigger,
		Manual:    opts.Manual,
		Mode:      e.cfg.Mode,
		StartedAt: started.UTC(),
	}

	periodStart := domain.DayStart(started, e.cfg.Location)
	for _, pos := range candidates {
		res.Processed++
		out, err := e.accrueOne(ctx, pos, started, periodStart)
		if err != nil {
			msg := fmt.Sprintf("position %d (%s/%s): %v", pos.ID, pos.InvestorID, pos.ProductID, err)
			res.Errors = append(res.Errors, msg)
			e.log.Warn().
				Err(err).
				Int64("position_id", pos.ID).
				Str("investor_id", pos.InvestorID.String()).
				Str("product_id", pos.ProductID.String()).
				Msg("Accrual failed for position")
			continue
		}
		if out == outcomeUpdated {
			res.Updated++
		} else {
			res.Skipped++
		}
	}

	res.FinishedAt = e.now().UTC()

	if err := e.runs.Insert(ctx, res); err != nil {
		e.log.Error().Err(err).Str("run_id", res.RunID).Msg("Failed to record accrual run")
	}
	e.metrics.ObserveAccrualCycle(opts.Trigger, true, res.Updated, res.Skipped, res.ErrorCount(), res.Duration())
	e.events.Emit(ctx, "accrual", &events.AccrualCompletedData{
		RunID:      res.RunID,
		Trigger:    res.Trigger,
		Manual:     res.Manual,
		Processed:  res.Processed,
		Updated:    res.Updated,
		Skipped:    res.Skipped,
		ErrorCount: res.ErrorCount(),
	})

	e.log.Info().
		Str("run_id", res.RunID).
		Str("trigger", res.Trigger).
		Bool("manual", res.Manual).
		Str("mode", string(res.Mode)).
		Int("processed", res.Processed).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("errors", res.ErrorCount()).
		Dur("duration", res.Duration()).
		Msg("Accrual cycle completed")

	return res, nil
}

// accrueOne applies one cycle to a single position inside its own transaction.
// The position is re-read in the transaction so the increment is applied to
// the balance current at write time, not the one listed at sweep start.
func (e *Engine) accrueOne(ctx context.Context, listed positions.Position, now, periodStart time.Time) (outcome, error) {
	rule, ok := e.catalog.Rule(listed.ProductID)
	if !ok {
		return outcomeSkipped, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, listed.ProductID)
	}
	if !rule.Accrues() {
		return outcomeSkipped, nil
	}

	result := outcomeSkipped
	err := database.WithTransaction(ctx, e.repo.DB(), func(tx *sql.Tx) error {
		repo := e.repo.WithTx(tx)
		pos, err := repo.GetByID(ctx, listed.ID)
		if err != nil {
			return err
		}
		if pos == nil || !pos.Eligible() {
			return nil
		}
		if pos.LastAccrualAt != nil && !pos.LastAccrualAt.Before(periodStart) {
			return nil
		}

		days := e.daysToApply(pos, now)
		delta := rule.ForDays(pos.Principal, pos.Units, days).Round(e.cfg.AmountScale)
		if delta.Abs().LessThan(e.cfg.Epsilon) || delta.IsZero() {
			return nil
		}

		applied, err := repo.SetAccrued(ctx, pos.ID, pos.AccruedIncome.Add(delta), now, periodStart)
		if err != nil {
			return err
		}
		if applied {
			result = outcomeUpdated
			e.log.Debug().
				Int64("position_id", pos.ID).
				Int64("days", days).
				Str("delta", delta.String()).
				Msg("Accrued")
		}
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}
	return result, nil
}

func (e *Engine) daysToApply(pos *positions.Position, now time.Time) int64 {
	if e.cfg.Mode != ModeElapsed || pos.LastAccrualAt == nil {
		return 1
	}
	days := domain.CalendarDays(*pos.LastAccrualAt, now, e.cfg.Location)
	if days < 1 {
		return 1
	}
	if days > int64(e.cfg.MaxCatchUpDays) {
		e.log.Warn().
			Int64("position_id", pos.ID).
			Int64("elapsed_days", days).
			Int("cap", e.cfg.MaxCatchUpDays).
			Msg("Accrual catch-up capped")
		return int64(e.cfg.MaxCatchUpDays)
	}
	return days
}
