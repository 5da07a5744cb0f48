package commands

import (
	"fmt"

	"github.com/marmos91/iec104d/internal/logger"
	"github.com/marmos91/iec104d/pkg/config"
)

// InitLogger initializes the logger from the loaded configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
