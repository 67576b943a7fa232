package scoring

import (
	"time"

	"github.com/kilianp07/fieldalloc/core/workload"
)

// Config tunes the scorer.
type Config struct {
	DefaultRadiusKm float64         `json:"default_radius_km"`
	NeutralRating   float64         `json:"neutral_rating"`
	AreaMaxAgeHours int             `json:"area_max_age_hours"`
	Workload        workload.Config `json:"workload"`
}

func (c *Config) SetDefaults() {
	if c.DefaultRadiusKm <= 0 {
		c.DefaultRadiusKm = 20
	}
	if c.NeutralRating <= 0 {
		c.NeutralRating = NeutralRating
	}
	if c.AreaMaxAgeHours <= 0 {
		c.AreaMaxAgeHours = 7 * 24
	}
	c.Workload.SetDefaults()
}

func (c Config) areaMaxAge() time.Duration {
	return time.Duration(c.AreaMaxAgeHours) * time.Hour
}
