package di

import (
	"fmt"

	"github.com/aristath/yieldfund/internal/config"
	"github.com/aristath/yieldfund/internal/scheduler"
	"github.com/rs/zerolog"
)

// maintenanceSchedule runs integrity, WAL and disk checks daily at 03:00.
const maintenanceSchedule = "0 0 3 * * *"

// RegisterJobs creates the scheduler and registers all periodic jobs.
// Returns JobInstances for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.AccrualEngine == nil {
		return nil, fmt.Errorf("services not initialized")
	}

	sched := scheduler.New(log)
	container.Scheduler = sched

	instances := &JobInstances{
		Accrual:     scheduler.NewAccrualJob(container.AccrualEngine, accrualLockTTL, log),
		Backup:      scheduler.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log),
		Maintenance: scheduler.NewMaintenanceJob(container.DB, cfg.DataDir, log),
	}

	if err := sched.AddJob(cfg.Accrual.Schedule, instances.Accrual); err != nil {
		return nil, fmt.Errorf("failed to register accrual job: %w", err)
	}
	if err := sched.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
		return nil, fmt.Errorf("failed to register backup job: %w", err)
	}
	if err := sched.AddJob(maintenanceSchedule, instances.Maintenance); err != nil {
		return nil, fmt.Errorf("failed to register maintenance job: %w", err)
	}

	log.Info().
		Str("accrual_schedule", cfg.Accrual.Schedule).
		Str("backup_schedule", cfg.Backup.Schedule).
		Msg("Jobs registered")

	return instances, nil
}
