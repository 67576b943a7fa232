package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kilianp07/fieldalloc/infra/logger"
)

// LoggingConfig selects the application log level and format.
type LoggingConfig struct {
	logger.Config `json:",squash"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	c.Config.SetDefaults()
}

// Validate checks the level and format.
func (c LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("unknown level %q", c.Level)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}
