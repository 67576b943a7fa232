package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RuleType tags the pricing rule variant.
type RuleType string

const (
	RuleCluster RuleType = "cluster"
	RuleUrgency RuleType = "urgency"
	RuleOffPeak RuleType = "offpeak"
	RuleFlex    RuleType = "flex"
	RuleLoyalty RuleType = "loyalty"
	RuleBundle  RuleType = "bundle"
)

// RuleConfig is the typed configuration of one rule variant.
type RuleConfig interface {
	RuleType() RuleType
	Validate() error
}

// ClusterConfig discounts jobs near existing bookings on the same day.
type ClusterConfig struct {
	MinJobs         int     `json:"min_jobs"`
	RadiusKm        float64 `json:"radius_km"`
	DiscountPercent float64 `json:"discount_percent"`
	EngineerScoped  bool    `json:"engineer_scoped"`
}

// UrgencyConfig charges a premium for short-notice bookings.
type UrgencyConfig struct {
	DaysThreshold  int     `json:"days_threshold"`
	PremiumPercent float64 `json:"premium_percent"`
}

// OffPeakConfig discounts bookings on quiet weekdays.
type OffPeakConfig struct {
	Weekdays        []time.Weekday `json:"weekdays"`
	DiscountPercent float64        `json:"discount_percent"`
}

// FlexConfig discounts week-flexible requests.
type FlexConfig struct {
	DiscountPercent float64 `json:"discount_percent"`
}

// LoyaltyConfig discounts customers with a completed-booking history.
type LoyaltyConfig struct {
	MinBookings     int     `json:"min_bookings"`
	DiscountPercent float64 `json:"discount_percent"`
}

// BundleConfig is priced by the bundle purchase flow; the engine ignores it.
type BundleConfig struct{}

func (ClusterConfig) RuleType() RuleType { return RuleCluster }
func (UrgencyConfig) RuleType() RuleType { return RuleUrgency }
func (OffPeakConfig) RuleType() RuleType { return RuleOffPeak }
func (FlexConfig) RuleType() RuleType    { return RuleFlex }
func (LoyaltyConfig) RuleType() RuleType { return RuleLoyalty }
func (BundleConfig) RuleType() RuleType  { return RuleBundle }

func validPercent(name string, v float64) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("%s must be within [0,100], got %v", name, v)
	}
	return nil
}

func (c ClusterConfig) Validate() error {
	if c.MinJobs < 1 {
		return errors.New("min_jobs must be at least 1")
	}
	if c.RadiusKm <= 0 {
		return errors.New("radius_km must be positive")
	}
	return validPercent("discount_percent", c.DiscountPercent)
}

func (c UrgencyConfig) Validate() error {
	if c.DaysThreshold < 1 {
		return errors.New("days_threshold must be at least 1")
	}
	return validPercent("premium_percent", c.PremiumPercent)
}

func (c OffPeakConfig) Validate() error {
	if len(c.Weekdays) == 0 {
		return errors.New("weekdays must not be empty")
	}
	for _, d := range c.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	return validPercent("discount_percent", c.DiscountPercent)
}

func (c FlexConfig) Validate() error { return validPercent("discount_percent", c.DiscountPercent) }

func (c LoyaltyConfig) Validate() error {
	if c.MinBookings < 1 {
		return errors.New("min_bookings must be at least 1")
	}
	return validPercent("discount_percent", c.DiscountPercent)
}

func (BundleConfig) Validate() error { return nil }

// DecodeRuleConfig parses raw JSON into the variant selected by t.
func DecodeRuleConfig(t RuleType, raw []byte) (RuleConfig, error) {
	var cfg RuleConfig
	switch t {
	case RuleCluster:
		cfg = &ClusterConfig{}
	case RuleUrgency:
		cfg = &UrgencyConfig{}
	case RuleOffPeak:
		cfg = &OffPeakConfig{}
	case RuleFlex:
		cfg = &FlexConfig{}
	case RuleLoyalty:
		cfg = &LoyaltyConfig{}
	case RuleBundle:
		return BundleConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", t)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", t, err)
		}
	}
	return deref(cfg), nil
}

func deref(cfg RuleConfig) RuleConfig {
	switch c := cfg.(type) {
	case *ClusterConfig:
		return *c
	case *UrgencyConfig:
		return *c
	case *OffPeakConfig:
		return *c
	case *FlexConfig:
		return *c
	case *LoyaltyConfig:
		return *c
	}
	return cfg
}

// PricingRule is a persisted, prioritised pricing rule.
type PricingRule struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Priority        int        `json:"priority"`
	Enabled         bool       `json:"enabled"`
	CustomerVisible bool       `json:"customer_visible"`
	Config          RuleConfig `json:"-"`
}

// Type returns the rule's variant tag.
func (r PricingRule) Type() RuleType {
	if r.Config == nil {
		return ""
	}
	return r.Config.RuleType()
}

// Validate checks the rule header and its typed configuration.
func (r PricingRule) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Config == nil {
		return errors.New("config is required")
	}
	if err := r.Config.Validate(); err != nil {
		return fmt.Errorf("%s config: %w", r.Type(), err)
	}
	return nil
}

type ruleJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            RuleType        `json:"type"`
	Priority        int             `json:"priority"`
	Enabled         bool            `json:"enabled"`
	CustomerVisible bool            `json:"customer_visible"`
	Config          json.RawMessage `json:"config"`
}

func (r PricingRule) MarshalJSON() ([]byte, error) {
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ruleJSON{
		ID:              r.ID,
		Name:            r.Name,
		Type:            r.Type(),
		Priority:        r.Priority,
		Enabled:         r.Enabled,
		CustomerVisible: r.CustomerVisible,
		Config:          cfg,
	})
}

func (r *PricingRule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := DecodeRuleConfig(raw.Type, raw.Config)
	if err != nil {
		return err
	}
	*r = PricingRule{
		ID:              raw.ID,
		Name:            raw.Name,
		Priority:        raw.Priority,
		Enabled:         raw.Enabled,
		CustomerVisible: raw.CustomerVisible,
		Config:          cfg,
	}
	return nil
}

// Direction says whether an adjustment lowers or raises the price.
type Direction string

const (
	Discount Direction = "discount"
	Premium  Direction = "premium"
)

// PricingAdjustment is the effect of one rule on a quote.
type PricingAdjustment struct {
	RuleID          string    `json:"rule_id"`
	RuleName        string    `json:"rule_name"`
	RuleType        RuleType  `json:"rule_type"`
	Direction       Direction `json:"direction"`
	Amount          float64   `json:"amount"`
	Percent         float64   `json:"percent"`
	CustomerVisible bool      `json:"customer_visible"`
	Explanation     string    `json:"explanation"`
}

// PricingContext carries everything a quote may use. Only ServiceID (or
// BasePrice) and Date are required; the rest degrade to neutral when absent.
type PricingContext struct {
	SiteID      string      `json:"site_id"`
	ServiceID   string      `json:"service_id"`
	CustomerID  string      `json:"customer_id,omitempty"`
	EngineerID  string      `json:"engineer_id,omitempty"`
	Date        time.Time   `json:"date"`
	HalfDay     HalfDay     `json:"half_day,omitempty"`
	Quantity    int         `json:"quantity"`
	Flexibility Flexibility `json:"flexibility"`
	BasePrice   float64     `json:"base_price,omitempty"`
}

// PricingResult is a quote with its full and customer-facing breakdown.
type PricingResult struct {
	BasePrice     float64             `json:"base_price"`
	FinalPrice    float64             `json:"final_price"`
	TotalDiscount float64             `json:"total_discount"`
	TotalPremium  float64             `json:"total_premium"`
	Adjustments   []PricingAdjustment `json:"adjustments"`
	Breakdown     []PricingAdjustment `json:"breakdown"`
	CalculatedAt  time.Time           `json:"calculated_at"`
}
