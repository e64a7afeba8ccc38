// Package main is the entry point for the fund income service.
//
// The service accrues daily income on investor positions, consolidates
// purchase imports and runs the withdrawal request workflow.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/yieldfund/internal/config"
	"github.com/aristath/yieldfund/internal/di"
	"github.com/aristath/yieldfund/internal/server"
	"github.com/aristath/yieldfund/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.DevMode,
		Service: "yieldfund",
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("timezone", cfg.Timezone.String()).
		Str("accrual_mode", cfg.Accrual.Mode).
		Msg("Starting fund service")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing resources")
		}
	}()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	container.Scheduler.Start()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Waits for a running accrual cycle to finish its rows
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
