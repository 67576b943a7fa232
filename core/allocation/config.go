package allocation

import (
	"fmt"

	"github.com/kilianp07/fieldalloc/core/model"
)

// Config tunes candidate generation and the scoring pool.
type Config struct {
	// Workers bounds concurrent candidate scoring.
	Workers int `json:"workers"`
	// DailyCap is the number of jobs after which an engineer's day is full.
	DailyCap int `json:"daily_cap"`
	// FlexibleDays is how many working days a week-flexible request spans.
	FlexibleDays int `json:"flexible_days"`
	// Alternatives is how many runner-up candidates get a score log.
	Alternatives    int            `json:"alternatives"`
	ClusterRadiusKm float64        `json:"cluster_radius_km"`
	DefaultWeights  *model.Weights `json:"default_weights,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.DailyCap <= 0 {
		c.DailyCap = 7
	}
	if c.FlexibleDays <= 0 {
		c.FlexibleDays = 5
	}
	if c.Alternatives < 0 {
		c.Alternatives = 0
	} else if c.Alternatives == 0 {
		c.Alternatives = 2
	}
	if c.ClusterRadiusKm <= 0 {
		c.ClusterRadiusKm = 5
	}
}

// Validate checks the configured default weights.
func (c Config) Validate() error {
	if c.DefaultWeights != nil {
		if err := c.DefaultWeights.Validate(); err != nil {
			return fmt.Errorf("allocation.default_weights: %w", err)
		}
	}
	return nil
}

func (c Config) weights() model.Weights {
	if c.DefaultWeights != nil {
		return *c.DefaultWeights
	}
	return model.DefaultWeights()
}
