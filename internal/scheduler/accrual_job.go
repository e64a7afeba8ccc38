package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/aristath/yieldfund/internal/modules/accrual"
	"github.com/rs/zerolog"
)

// AccrualRunner is the part of the accrual engine the job needs.
type AccrualRunner interface {
	RunCycle(ctx context.Context, opts accrual.RunOptions) (*accrual.CycleResult, error)
}

// AccrualJob runs the scheduled daily accrual sweep.
type AccrualJob struct {
	engine  AccrualRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewAccrualJob creates the daily accrual job.
func NewAccrualJob(engine AccrualRunner, timeout time.Duration, log zerolog.Logger) *AccrualJob {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &AccrualJob{
		engine:  engine,
		timeout: timeout,
		log:     log.With().Str("job", "daily_accrual").Logger(),
	}
}

// Name returns the job name
func (j *AccrualJob) Name() string {
	return "daily_accrual"
}

// Run executes one scheduled cycle. A cycle already running elsewhere is
// not a failure of this job.
func (j *AccrualJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.engine.RunCycle(ctx, accrual.RunOptions{Trigger: accrual.TriggerSchedule})
	if errors.Is(err, domain.ErrAccrualInProgress) {
		j.log.Info().Msg("Accrual cycle already running elsewhere, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	if result.ErrorCount() > 0 {
		j.log.Warn().
			Str("run_id", result.RunID).
			Int("errors", result.ErrorCount()).
			Msg("Scheduled accrual finished with position errors")
	}
	return nil
}
