package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aristath/yieldfund/internal/config"
	"github.com/aristath/yieldfund/internal/locking"
	"github.com/aristath/yieldfund/internal/modules/accrual"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:      dir,
		Port:         8001,
		LogLevel:     "info",
		DevMode:      true,
		RateLimitRPS: 5,
		Timezone:     time.UTC,
		Accrual: config.AccrualConfig{
			Schedule:       "0 5 0 * * *",
			Mode:           config.AccrualModeDaily,
			MaxCatchUpDays: 7,
			Epsilon:        decimal.RequireFromString("0.01"),
			AmountScale:    2,
		},
		Withdrawal: config.WithdrawalConfig{
			FeeRate:    decimal.RequireFromString("0.05"),
			DailyLimit: 3,
		},
		Consolidation: config.ConsolidationConfig{Workers: 2},
		Backup: config.BackupConfig{
			Prefix:        "fund",
			Schedule:      "0 30 1 * * *",
			LocalDir:      filepath.Join(dir, "backups"),
			RetentionDays: 30,
		},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()

	container, jobs, err := Wire(cfg, log)
	require.NoError(t, err)
	require.NotNil(t, container)
	require.NotNil(t, jobs)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.DB)
	assert.NotNil(t, container.Catalog)
	assert.NotNil(t, container.PositionRepo)
	assert.NotNil(t, container.WithdrawalRepo)
	assert.NotNil(t, container.AccrualEngine)
	assert.NotNil(t, container.ConsolidationService)
	assert.NotNil(t, container.PositionService)
	assert.NotNil(t, container.WithdrawalService)
	assert.NotNil(t, container.BackupService)
	assert.NotNil(t, container.Scheduler)
	assert.Nil(t, container.RedisClient)
	assert.IsType(t, &locking.SQLiteLocker{}, container.Locker)

	assert.Equal(t, "daily_accrual", jobs.Accrual.Name())
	assert.Equal(t, "backup", jobs.Backup.Name())
	assert.Equal(t, "daily_maintenance", jobs.Maintenance.Name())

	assert.FileExists(t, filepath.Join(cfg.DataDir, "fund.db"))
}

func TestWire_AccrualRunsOnEmptyDatabase(t *testing.T) {
	cfg := testConfig(t)

	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	result, err := container.AccrualEngine.RunCycle(context.Background(), accrual.RunOptions{Manual: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}

func TestWire_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr()

	container, _, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	require.NotNil(t, container.RedisClient)
	assert.IsType(t, &locking.RedisLocker{}, container.Locker)
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Accrual.Schedule = "not a cron spec"

	_, _, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accrual job")
}

func TestWire_MissingProductsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProductsFile = filepath.Join(cfg.DataDir, "missing.toml")

	_, _, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product catalog")
}
