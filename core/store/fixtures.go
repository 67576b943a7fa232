package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fieldalloc/core/model"
)

// Fixtures is a seed document for the in-memory store.
type Fixtures struct {
	Sites        []model.Site             `json:"sites"`
	Services     []model.Service          `json:"services"`
	Engineers    []model.Engineer         `json:"engineers"`
	Bookings     []model.Booking          `json:"bookings"`
	PricingRules []model.PricingRule      `json:"pricing_rules"`
	Areas        []model.AreaIntelligence `json:"areas"`
	Customers    []model.CustomerMetrics  `json:"customers"`
}

// LoadFixtures reads a JSON or YAML fixtures file.
func LoadFixtures(path string) (Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixtures{}, err
	}
	defer f.Close()
	return DecodeFixtures(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// DecodeFixtures decodes fixtures from r. YAML documents are converted to
// JSON first so both formats share the model's JSON field names.
func DecodeFixtures(r io.Reader, format string) (Fixtures, error) {
	var fx Fixtures
	switch strings.ToLower(format) {
	case "json":
		if err := json.NewDecoder(r).Decode(&fx); err != nil {
			return fx, fmt.Errorf("decode fixtures: %w", err)
		}
	case "yaml", "yml":
		var doc any
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return fx, fmt.Errorf("decode fixtures: %w", err)
		}
		raw, err := json.Marshal(expandDates(doc))
		if err != nil {
			return fx, fmt.Errorf("convert fixtures: %w", err)
		}
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&fx); err != nil {
			return fx, fmt.Errorf("decode fixtures: %w", err)
		}
	default:
		return fx, fmt.Errorf("unsupported fixtures format: %s", format)
	}
	return fx, nil
}

// expandDates rewrites date-only scalars, which yaml.v3 leaves as strings
// when decoding into any, to RFC 3339 midnight UTC.
func expandDates(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = expandDates(e)
		}
	case []any:
		for i, e := range x {
			x[i] = expandDates(e)
		}
	case string:
		if d, err := time.Parse(time.DateOnly, x); err == nil {
			return d.Format(time.RFC3339)
		}
	}
	return v
}

// Seed copies the fixtures into s. Pricing rules are validated first.
func (fx Fixtures) Seed(ctx context.Context, s *MemoryStore) error {
	for _, r := range fx.PricingRules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("pricing rule %s: %w", r.ID, err)
		}
	}
	for _, v := range fx.Sites {
		s.PutSite(v)
	}
	for _, v := range fx.Services {
		s.PutService(v)
	}
	for _, v := range fx.Engineers {
		s.PutEngineer(v)
	}
	for _, v := range fx.Bookings {
		s.PutBooking(v)
	}
	for _, r := range fx.PricingRules {
		if err := s.SavePricingRule(ctx, r); err != nil {
			return err
		}
	}
	for _, a := range fx.Areas {
		if err := s.UpsertAreaIntelligence(ctx, a); err != nil {
			return err
		}
	}
	for _, m := range fx.Customers {
		if err := s.UpsertCustomerMetrics(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
