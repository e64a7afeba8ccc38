package di

import (
	"fmt"

	"github.com/aristath/yieldfund/internal/config"
	"github.com/aristath/yieldfund/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens fund.db and applies the schema.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// fund.db - positions, withdrawal ledger, accrual runs, leases
	fundDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileLedger, // balances and the withdrawal ledger need full fsync
		Name:    "fund",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fund database: %w", err)
	}
	container.DB = fundDB

	if err := fundDB.Migrate(); err != nil {
		fundDB.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", fundDB.Name(), err)
	}

	log.Info().Str("path", fundDB.Path()).Msg("Fund database initialized and schema applied")

	return container, nil
}
