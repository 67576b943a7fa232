package audit

import (
	"github.com/kilianp07/fieldalloc/core/factory"
)

var storeRegistry = factory.NewRegistry[Store]()

func init() {
	_ = storeRegistry.Register("none", func(map[string]any) (Store, error) {
		return NopStore{}, nil
	})
	_ = storeRegistry.Register("jsonl", func(conf map[string]any) (Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(orDefault(c.Path, "data/decisions.jsonl"))
	})
	_ = storeRegistry.Register("rotating_jsonl", func(conf map[string]any) (Store, error) {
		var c struct {
			Path       string `json:"path"`
			MaxSizeMB  int    `json:"max_size_mb"`
			MaxBackups int    `json:"max_backups"`
			MaxAgeDays int    `json:"max_age_days"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(orDefault(c.Path, "data/decisions.jsonl"), c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = storeRegistry.Register("sqlite", func(conf map[string]any) (Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(orDefault(c.Path, "data/decisions.db"))
	})
}

// NewStore builds the store named by cfg.Type. An empty type disables
// auditing.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return NopStore{}, nil
	}
	return storeRegistry.Create(cfg)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
