package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilianp07/fieldalloc/core/model"
)

// RuleSeed is a pricing rule as written in the config file.
type RuleSeed struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	Priority        int            `json:"priority"`
	Enabled         bool           `json:"enabled"`
	CustomerVisible bool           `json:"customer_visible"`
	Config          map[string]any `json:"config"`
}

// Rule decodes the seed into a validated pricing rule.
func (s RuleSeed) Rule() (model.PricingRule, error) {
	raw, err := json.Marshal(s.Config)
	if err != nil {
		return model.PricingRule{}, err
	}
	cfg, err := model.DecodeRuleConfig(model.RuleType(s.Type), raw)
	if err != nil {
		return model.PricingRule{}, err
	}
	r := model.PricingRule{
		ID:              s.ID,
		Name:            s.Name,
		Priority:        s.Priority,
		Enabled:         s.Enabled,
		CustomerVisible: s.CustomerVisible,
		Config:          cfg,
	}
	return r, r.Validate()
}

// PricingConfig lists rules written to the store at startup. Existing rules
// with the same id are replaced.
type PricingConfig struct {
	Rules []RuleSeed `json:"rules"`
}

// Validate checks every seed and rejects duplicate ids.
func (c PricingConfig) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Rules))
	for i, s := range c.Rules {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("rules[%d]: id is required", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("rules[%d]: duplicate id %s", i, s.ID))
		}
		seen[s.ID] = true
		if _, err := s.Rule(); err != nil {
			errs = append(errs, fmt.Errorf("rules[%d] %s: %w", i, s.ID, err))
		}
	}
	return errors.Join(errs...)
}

// SeedRules returns the decoded rules.
func (c PricingConfig) SeedRules() ([]model.PricingRule, error) {
	out := make([]model.PricingRule, 0, len(c.Rules))
	for _, s := range c.Rules {
		r, err := s.Rule()
		if err != nil {
			return nil, fmt.Errorf("pricing rule %s: %w", s.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}
