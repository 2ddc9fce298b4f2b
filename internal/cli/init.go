// Package cli provides common CLI initialization utilities shared by the
// ledger commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads the environment, .env included, and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// NewLogger builds a logger for component from the logging settings.
func NewLogger(cfg *config.Config, component string) *log.Logger {
	return log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
}

// SetupLogger installs the application logger as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	logger := NewLogger(cfg, log.ComponentApp)
	log.SetDefault(logger)
	return logger
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// OpenStore opens the configured ledger store.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
}
