package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/logward/logward/internal/config"
	"github.com/logward/logward/internal/database"
	"github.com/logward/logward/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(ctx, cfg.Database.URL()); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	pool, err := database.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database pool failed")
	}
	defer pool.Close()

	var nrApp *newrelic.Application
	if cfg.Observability != nil && cfg.Observability.Enabled {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.Observability.ServiceName),
			newrelic.ConfigLicense(cfg.Observability.LicenseKey),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("newrelic init failed")
		}
		defer nrApp.Shutdown(10 * time.Second)
	}

	srv, err := server.New(cfg, pool, nrApp, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("server init failed")
	}

	logger.Info().Str("port", cfg.Server.Port).Str("env", cfg.Primary.Env).Msg("starting")
	if err := srv.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Primary.Env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "logward").Logger()
}
