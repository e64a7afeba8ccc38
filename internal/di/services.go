package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aristath/yieldfund/internal/config"
	"github.com/aristath/yieldfund/internal/events"
	"github.com/aristath/yieldfund/internal/locking"
	"github.com/aristath/yieldfund/internal/metrics"
	"github.com/aristath/yieldfund/internal/modules/accrual"
	"github.com/aristath/yieldfund/internal/modules/consolidation"
	"github.com/aristath/yieldfund/internal/modules/positions"
	"github.com/aristath/yieldfund/internal/modules/rates"
	"github.com/aristath/yieldfund/internal/modules/withdrawals"
	"github.com/aristath/yieldfund/internal/reliability"
	"github.com/rs/zerolog"
)

// accrualLockTTL bounds how long a crashed process can block the next cycle.
const accrualLockTTL = 30 * time.Minute

// InitializeServices creates infrastructure and services. Repositories must
// already be initialized.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.PositionRepo == nil {
		return fmt.Errorf("repositories not initialized")
	}

	catalog, err := rates.LoadFile(cfg.ProductsFile)
	if err != nil {
		return fmt.Errorf("failed to load product catalog: %w", err)
	}
	container.Catalog = catalog
	log.Info().Int("products", catalog.Len()).Str("file", cfg.ProductsFile).Msg("Product catalog loaded")

	// Event bus, with Kafka forwarding when brokers are configured
	container.EventManager = events.NewManager(log)
	if len(cfg.Kafka.Brokers) > 0 {
		container.EventManager.AddSink(events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, log))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka event sink enabled")
	}

	container.Metrics = metrics.New()

	// Cross-process accrual lock: Redis when shared, otherwise a lease row in fund.db
	if cfg.Redis.URL != "" {
		client, err := locking.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		container.RedisClient = client
		container.Locker = locking.NewRedisLocker(client, "fund:", log)
		log.Info().Msg("Using Redis accrual lock")
	} else {
		container.Locker = locking.NewSQLiteLocker(container.DB.Conn(), log)
	}

	container.AccrualEngine = accrual.NewEngine(
		container.PositionRepo,
		container.AccrualRunRepo,
		catalog,
		container.Locker,
		container.EventManager,
		container.Metrics,
		accrual.Config{
			Mode:           accrual.Mode(cfg.Accrual.Mode),
			MaxCatchUpDays: cfg.Accrual.MaxCatchUpDays,
			Epsilon:        cfg.Accrual.Epsilon,
			AmountScale:    cfg.Accrual.AmountScale,
			Location:       cfg.Timezone,
			LockTTL:        accrualLockTTL,
		},
		log,
	)

	container.ConsolidationService = consolidation.NewService(
		container.PositionRepo,
		catalog,
		container.EventManager,
		container.Metrics,
		consolidation.Config{
			Workers:     cfg.Consolidation.Workers,
			AmountScale: cfg.Accrual.AmountScale,
		},
		log,
	)

	container.PositionService = positions.NewService(container.PositionRepo, container.EventManager, log)

	container.WithdrawalService = withdrawals.NewService(
		container.WithdrawalRepo,
		container.PositionRepo,
		catalog,
		container.EventManager,
		container.Metrics,
		withdrawals.Config{
			FeeRate:     cfg.Withdrawal.FeeRate,
			DailyLimit:  cfg.Withdrawal.DailyLimit,
			AmountScale: cfg.Accrual.AmountScale,
			Location:    cfg.Timezone,
		},
		log,
	)

	store, err := newBackupStore(cfg.Backup, log)
	if err != nil {
		return err
	}
	container.BackupService = reliability.NewBackupService(
		container.DB,
		store,
		filepath.Join(cfg.DataDir, "backup-staging"),
		cfg.Backup.Prefix,
		log,
	)

	log.Info().Msg("All services initialized")

	return nil
}

// newBackupStore returns the S3 store when a bucket is configured and the
// local directory store otherwise.
func newBackupStore(cfg config.BackupConfig, log zerolog.Logger) (reliability.ObjectStore, error) {
	if cfg.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := reliability.NewS3Store(ctx, reliability.S3StoreConfig{
			Bucket:          cfg.Bucket,
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 backup store: %w", err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("Backups upload to S3-compatible storage")
		return store, nil
	}

	store, err := reliability.NewLocalStore(cfg.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create local backup store: %w", err)
	}
	log.Info().Str("dir", cfg.LocalDir).Msg("Backups written to local directory")
	return store, nil
}
