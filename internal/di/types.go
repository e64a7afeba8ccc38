// Package di wires the fund service together.
//
// The Container is the single source of truth for all service instances and
// is passed to the HTTP server and the scheduler.
package di

import (
	"github.com/aristath/yieldfund/internal/database"
	"github.com/aristath/yieldfund/internal/events"
	"github.com/aristath/yieldfund/internal/locking"
	"github.com/aristath/yieldfund/internal/metrics"
	"github.com/aristath/yieldfund/internal/modules/accrual"
	"github.com/aristath/yieldfund/internal/modules/consolidation"
	"github.com/aristath/yieldfund/internal/modules/positions"
	"github.com/aristath/yieldfund/internal/modules/rates"
	"github.com/aristath/yieldfund/internal/modules/withdrawals"
	"github.com/aristath/yieldfund/internal/reliability"
	"github.com/aristath/yieldfund/internal/scheduler"
	"github.com/redis/go-redis/v9"
)

// Container holds all dependencies for the application.
type Container struct {
	// Database (positions, withdrawal ledger, accrual runs, locks)
	DB *database.DB

	// Product catalog, immutable after load
	Catalog *rates.Catalog

	// Repositories
	PositionRepo   *positions.Repository
	WithdrawalRepo *withdrawals.Repository
	AccrualRunRepo *accrual.RunRepository

	// Infrastructure
	EventManager *events.Manager
	Metrics      *metrics.Metrics
	Locker       locking.Locker
	RedisClient  *redis.Client // nil unless REDIS_URL is set

	// Services
	AccrualEngine        *accrual.Engine
	ConsolidationService *consolidation.Service
	PositionService      *positions.Service
	WithdrawalService    *withdrawals.Service
	BackupService        *reliability.BackupService

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered jobs for manual triggering.
type JobInstances struct {
	Accrual     scheduler.Job
	Backup      scheduler.Job
	Maintenance scheduler.Job
}

// Close releases everything the container opened. The scheduler must be
// stopped first.
func (c *Container) Close() error {
	var firstErr error
	if c.EventManager != nil {
		if err := c.EventManager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
