package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/core/model"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `logging:
  level: debug
allocation:
  workers: 8
  default_weights:
    customer: 0.5
    engineer: 0.25
    platform: 0.25
scoring:
  default_radius_km: 25
geocode:
  client:
    rps: 5
    timeout: 2s
  cache:
    ttl: 48h
redis:
  addr: localhost:6379
database:
  dsn: postgres://localhost/fieldalloc
  max_open_conns: 20
  migrate: true
audit:
  type: sqlite
  conf:
    path: /tmp/decisions.db
metrics:
  sinks:
    - type: "nop"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "fieldalloc"
  qos:
    allocation: 1
recalc:
  area_schedule: "0 3 * * *"
  on_outcome: true
pricing:
  rules:
    - id: urgency
      name: Short notice
      type: urgency
      priority: 1
      enabled: true
      customer_visible: true
      config:
        days_threshold: 3
        premium_percent: 20
    - id: offpeak
      name: Quiet days
      type: offpeak
      priority: 2
      enabled: true
      config:
        weekdays: [1, 5]
        discount_percent: 5
legacy:
  url: http://legacy.internal
  timeout: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8, cfg.Allocation.Workers)
	assert.Equal(t, 7, cfg.Allocation.DailyCap)
	require.NotNil(t, cfg.Allocation.DefaultWeights)
	assert.Equal(t, 0.5, cfg.Allocation.DefaultWeights.Customer)
	assert.Equal(t, 25.0, cfg.Scoring.DefaultRadiusKm)
	assert.Equal(t, 2*time.Second, cfg.Geocode.Client.Timeout)
	assert.Equal(t, 48*time.Hour, cfg.Geocode.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "postgres://localhost/fieldalloc", cfg.Database.DSN)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, "sqlite", cfg.Audit.Type)
	assert.Equal(t, "/tmp/decisions.db", cfg.Audit.Conf["path"])
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, byte(1), cfg.MQTT.QoS["allocation"])
	assert.Equal(t, "0 3 * * *", cfg.Recalc.AreaSchedule)
	assert.True(t, cfg.Recalc.OnOutcome)
	assert.Equal(t, 10*time.Minute, cfg.Recalc.Timeout)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.Legacy.Timeout)

	rules, err := cfg.Pricing.SeedRules()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, model.UrgencyConfig{DaysThreshold: 3, PremiumPercent: 20}, rules[0].Config)
	assert.Equal(t, model.OffPeakConfig{Weekdays: []time.Weekday{time.Monday, time.Friday}, DiscountPercent: 5}, rules[1].Config)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"http":{"addr":":8080"},"allocation":{"workers":2}}`)
	t.Setenv("K_HTTP__ADDR", ":9000")
	t.Setenv("K_ALLOCATION__WORKERS", "6")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 6, cfg.Allocation.Workers)
	assert.Equal(t, "jsonl", cfg.Audit.Type)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		msg  string
	}{
		{"format", "config.toml", ``, "unsupported config format"},
		{"level", "c.yaml", "logging:\n  level: loud\n", "logging: unknown level"},
		{"weights", "c.yaml", "allocation:\n  default_weights:\n    customer: 0.9\n    engineer: 0.9\n    platform: 0\n", "allocation"},
		{"rule", "c.yaml", "pricing:\n  rules:\n    - id: x\n      name: X\n      type: surge\n", "unknown rule type"},
		{"duplicate rule", "c.yaml", "pricing:\n  rules:\n    - {id: f, name: F, type: flex, config: {discount_percent: 5}}\n    - {id: f, name: G, type: flex, config: {discount_percent: 5}}\n", "duplicate id f"},
		{"fixtures with dsn", "c.yaml", "database:\n  dsn: postgres://x\n  fixtures: seed.json\n", "database"},
		{"legacy url", "c.yaml", "legacy:\n  url: legacy.internal\n", "legacy"},
		{"sentry rate", "c.yaml", "sentry:\n  traces_sample_rate: 2\n", "sentry: traces_sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
