package di

import (
	"fmt"

	"github.com/aristath/yieldfund/internal/modules/accrual"
	"github.com/aristath/yieldfund/internal/modules/positions"
	"github.com/aristath/yieldfund/internal/modules/withdrawals"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories on the fund database.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.DB == nil {
		return fmt.Errorf("container database not initialized")
	}

	conn := container.DB.Conn()

	container.PositionRepo = positions.NewRepository(conn, log)
	container.WithdrawalRepo = withdrawals.NewRepository(conn, log)
	container.AccrualRunRepo = accrual.NewRunRepository(conn, log)

	log.Info().Msg("All repositories initialized")

	return nil
}
