package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fieldalloc/auth"
	"github.com/kilianp07/fieldalloc/core/allocation"
	"github.com/kilianp07/fieldalloc/core/factory"
	"github.com/kilianp07/fieldalloc/core/metrics"
	"github.com/kilianp07/fieldalloc/core/scoring"
	"github.com/kilianp07/fieldalloc/infra/geocode"
	"github.com/kilianp07/fieldalloc/infra/mqtt"
	"github.com/kilianp07/fieldalloc/infra/postgres"
	"github.com/kilianp07/fieldalloc/jobs/recalc"
)

type Config struct {
	Logging    LoggingConfig        `json:"logging"`
	Allocation allocation.Config    `json:"allocation"`
	Scoring    scoring.Config       `json:"scoring"`
	Pricing    PricingConfig        `json:"pricing"`
	Geocode    GeocodeConfig        `json:"geocode"`
	Redis      RedisConfig          `json:"redis"`
	Database   DatabaseConfig       `json:"database"`
	Audit      factory.ModuleConfig `json:"audit"`
	Metrics    metrics.Config       `json:"metrics"`
	MQTT       mqtt.Config          `json:"mqtt"`
	Recalc     recalc.Config        `json:"recalc"`
	HTTP       HTTPConfig           `json:"http"`
	Legacy     LegacyConfig         `json:"legacy"`
	Sentry     SentryConfig         `json:"sentry"`
}

// GeocodeConfig groups the postcode lookup client and its Redis cache.
type GeocodeConfig struct {
	Client geocode.Config      `json:"client"`
	Cache  geocode.CacheConfig `json:"cache"`
}

// DatabaseConfig selects the repository. Without a DSN bookings live in
// memory, optionally seeded from Fixtures.
type DatabaseConfig struct {
	postgres.Config `json:",squash"`
	Fixtures        string `json:"fixtures"`
}

// LegacyConfig points at the previous allocator, used in shadow mode.
type LegacyConfig struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	// Auth enables OAuth2 client credentials on legacy calls.
	Auth auth.Conf `json:"auth"`
}

// Load reads path and applies K_ prefixed environment overrides, where "__"
// separates nested keys (K_HTTP__ADDR=:9000).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section's unset fields.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Allocation.SetDefaults()
	c.Scoring.SetDefaults()
	c.Recalc.SetDefaults()
	c.HTTP.SetDefaults()
	if c.Audit.Type == "" {
		c.Audit.Type = "jsonl"
	}
}

// Validate checks every section and joins the failures.
func (c *Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	add("logging", c.Logging.Validate())
	add("allocation", c.Allocation.Validate())
	add("pricing", c.Pricing.Validate())
	add("http", c.HTTP.Validate())
	add("sentry", c.Sentry.Validate())
	if c.Legacy.URL != "" && !strings.HasPrefix(c.Legacy.URL, "http") {
		add("legacy", fmt.Errorf("url %q must be http(s)", c.Legacy.URL))
	}
	if c.Database.DSN != "" && c.Database.Fixtures != "" {
		add("database", errors.New("fixtures are only loaded into the in-memory store"))
	}
	return errors.Join(errs...)
}
