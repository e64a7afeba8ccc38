// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Accrual modes.
const (
	AccrualModeDaily   = "daily"
	AccrualModeElapsed = "elapsed"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Directory holding fund.db (always absolute)
	Port         int
	LogLevel     string
	DevMode      bool
	ProductsFile string // Optional TOML product catalog; empty uses the built-in catalog
	BatchSecret  string // Shared secret and JWT HMAC key for batch/admin routes
	RateLimitRPS float64
	Timezone     *time.Location // Day boundary for accrual periods and the daily withdrawal cap

	Accrual       AccrualConfig
	Withdrawal    WithdrawalConfig
	Consolidation ConsolidationConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Backup        BackupConfig
}

// AccrualConfig configures the accrual engine and its schedule.
type AccrualConfig struct {
	Schedule       string // cron spec with seconds field
	Mode           string // daily | elapsed
	MaxCatchUpDays int
	Epsilon        decimal.Decimal
	AmountScale    int32
}

// WithdrawalConfig configures fees and limits.
type WithdrawalConfig struct {
	FeeRate    decimal.Decimal
	DailyLimit int
}

// ConsolidationConfig configures purchase imports.
type ConsolidationConfig struct {
	Workers int
}

// RedisConfig enables the distributed accrual lock when URL is set.
type RedisConfig struct {
	URL string
}

// KafkaConfig enables the event sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// BackupConfig configures S3-compatible database backups.
type BackupConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	Schedule        string
	LocalDir        string
	RetentionDays   int
}

// Enabled reports whether uploads are configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// DatabasePath returns the path of the fund database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "fund.db")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FUND_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	tzName := getEnv("PLATFORM_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_TIMEZONE %q: %w", tzName, err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("GO_PORT", 8001),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		ProductsFile: getEnv("PRODUCTS_FILE", ""),
		BatchSecret:  getEnv("BATCH_SECRET", ""),
		RateLimitRPS: getEnvAsFloat("RATE_LIMIT_RPS", 5),
		Timezone:     loc,
		Accrual: AccrualConfig{
			Schedule:       getEnv("ACCRUAL_SCHEDULE", "0 5 0 * * *"),
			Mode:           strings.ToLower(getEnv("ACCRUAL_MODE", AccrualModeDaily)),
			MaxCatchUpDays: getEnvAsInt("ACCRUAL_MAX_CATCHUP_DAYS", 7),
			Epsilon:        getEnvAsDecimal("ACCRUAL_EPSILON", decimal.RequireFromString("0.01")),
			AmountScale:    int32(getEnvAsInt("AMOUNT_SCALE", 2)),
		},
		Withdrawal: WithdrawalConfig{
			FeeRate:    getEnvAsDecimal("WITHDRAWAL_FEE_RATE", decimal.RequireFromString("0.05")),
			DailyLimit: getEnvAsInt("WITHDRAWAL_DAILY_LIMIT", 3),
		},
		Consolidation: ConsolidationConfig{
			Workers: getEnvAsInt("CONSOLIDATION_WORKERS", 4),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_TOPIC", "fund-events"),
		},
		Backup: loadBackupConfig(absDataDir),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.Accrual.Mode != AccrualModeDaily && c.Accrual.Mode != AccrualModeElapsed {
		return fmt.Errorf("ACCRUAL_MODE must be %q or %q, got %q", AccrualModeDaily, AccrualModeElapsed, c.Accrual.Mode)
	}
	if c.Accrual.MaxCatchUpDays < 1 {
		return fmt.Errorf("ACCRUAL_MAX_CATCHUP_DAYS must be at least 1")
	}
	if c.Accrual.Epsilon.IsNegative() {
		return fmt.Errorf("ACCRUAL_EPSILON must not be negative")
	}
	if c.Accrual.AmountScale < 0 || c.Accrual.AmountScale > 18 {
		return fmt.Errorf("AMOUNT_SCALE must be between 0 and 18")
	}
	if c.Withdrawal.FeeRate.IsNegative() || c.Withdrawal.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("WITHDRAWAL_FEE_RATE must be in [0, 1)")
	}
	if c.Withdrawal.DailyLimit < 1 {
		return fmt.Errorf("WITHDRAWAL_DAILY_LIMIT must be at least 1")
	}
	if c.Consolidation.Workers < 1 {
		return fmt.Errorf("CONSOLIDATION_WORKERS must be at least 1")
	}
	if !c.DevMode && c.BatchSecret == "" {
		return fmt.Errorf("BATCH_SECRET is required unless DEV_MODE is enabled")
	}
	if c.Backup.Enabled() && c.Backup.Region == "" {
		return fmt.Errorf("BACKUP_REGION is required when BACKUP_BUCKET is set")
	}
	return nil
}

func loadBackupConfig(dataDir string) BackupConfig {
	return BackupConfig{
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Prefix:          getEnv("BACKUP_PREFIX", "fund"),
		Schedule:        getEnv("BACKUP_SCHEDULE", "0 30 1 * * *"),
		LocalDir:        getEnv("BACKUP_LOCAL_DIR", filepath.Join(dataDir, "backups")),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
