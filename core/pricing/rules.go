package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
)

// RuleService manages persisted pricing rules. Configurations are validated
// before anything is written.
type RuleService struct {
	store store.PricingStore
}

func NewRuleService(s store.PricingStore) *RuleService {
	return &RuleService{store: s}
}

// List returns every rule by ascending priority.
func (s *RuleService) List(ctx context.Context) ([]model.PricingRule, error) {
	return s.store.ListPricingRules(ctx)
}

// Create validates and stores a new rule, assigning an id when missing.
func (s *RuleService) Create(ctx context.Context, r model.PricingRule) (model.PricingRule, error) {
	if err := r.Validate(); err != nil {
		return model.PricingRule{}, apperr.Wrap(apperr.ValidationFailure, "pricing.Create", err)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := s.store.SavePricingRule(ctx, r); err != nil {
		return model.PricingRule{}, fmt.Errorf("pricing: save rule: %w", err)
	}
	return r, nil
}

// Toggle enables or disables a rule.
func (s *RuleService) Toggle(ctx context.Context, id string, enabled bool) (model.PricingRule, error) {
	r, err := s.store.GetPricingRule(ctx, id)
	if err != nil {
		return model.PricingRule{}, err
	}
	r.Enabled = enabled
	if err := s.store.SavePricingRule(ctx, r); err != nil {
		return model.PricingRule{}, fmt.Errorf("pricing: save rule: %w", err)
	}
	return r, nil
}

// UpdateConfig replaces a rule's configuration. The new configuration must
// be of the rule's existing type.
func (s *RuleService) UpdateConfig(ctx context.Context, id string, cfg model.RuleConfig) (model.PricingRule, error) {
	const op = "pricing.UpdateConfig"
	r, err := s.store.GetPricingRule(ctx, id)
	if err != nil {
		return model.PricingRule{}, err
	}
	if cfg == nil {
		return model.PricingRule{}, apperr.Invalidf(op, "config is required")
	}
	if cfg.RuleType() != r.Type() {
		return model.PricingRule{}, apperr.Invalidf(op, "rule %s is %s, got %s config", id, r.Type(), cfg.RuleType())
	}
	r.Config = cfg
	if err := r.Validate(); err != nil {
		return model.PricingRule{}, apperr.Wrap(apperr.ValidationFailure, op, err)
	}
	if err := s.store.SavePricingRule(ctx, r); err != nil {
		return model.PricingRule{}, fmt.Errorf("pricing: save rule: %w", err)
	}
	return r, nil
}
