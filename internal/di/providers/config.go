// Package providers contains dependency injection providers for the Shelfmark
// sync daemon.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/shelfmarkapp/shelfmark-sync/internal/config"
	"github.com/shelfmarkapp/shelfmark-sync/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	log.Info("Starting Shelfmark sync daemon",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"remote_configured", cfg.Remote.BaseURL != "",
	)

	return log, nil
}
