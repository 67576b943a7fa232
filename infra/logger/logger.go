package logger

import (
	"sync"

	corelogger "github.com/kilianp07/fieldalloc/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// Config selects the log level and output format.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SetDefaults fills empty fields.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

var (
	mu       sync.RWMutex
	defaults = Config{Level: "debug"}
)

// Configure sets the level and format of loggers created afterwards by New.
func Configure(cfg Config) {
	cfg.SetDefaults()
	mu.Lock()
	defaults = cfg
	mu.Unlock()
}

func current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return defaults
}

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}
