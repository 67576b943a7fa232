// Package pricing applies the prioritised pricing rules to a base price.
package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/fieldalloc/core/events"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/core/store"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
)

const (
	clusterStep       = 0.25
	clusterCapFactor  = 1.5
	loyaltyCapPercent = 15.0
)

// Repository is the persistence the engine reads.
type Repository interface {
	store.PricingStore
	store.CatalogStore
	store.BookingStore
}

// Engine computes quotes.
type Engine struct {
	repo     Repository
	geocoder geo.Geocoder
	log      logger.Logger
	bus      eventbus.EventBus
	now      func() time.Time
}

func NewEngine(repo Repository, g geo.Geocoder, log logger.Logger) *Engine {
	return &Engine{repo: repo, geocoder: g, log: logger.OrNop(log), now: time.Now}
}

// SetClock overrides the time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetEventBus publishes a QuoteEvent for every calculated price.
func (e *Engine) SetEventBus(bus eventbus.EventBus) { e.bus = bus }

// quote holds lazily resolved optional context for one calculation.
type quote struct {
	pc       model.PricingContext
	base     float64
	geocoder *geo.Memo
}

// Quote applies every enabled rule in priority order. Only a missing
// service, when no base price is given, is an error; other missing context
// leaves the affected rule without effect. Nothing is counted or published.
func (e *Engine) Quote(ctx context.Context, pc model.PricingContext) (model.PricingResult, error) {
	base := pc.BasePrice
	if base <= 0 {
		svc, err := e.repo.GetService(ctx, pc.ServiceID)
		if err != nil {
			return model.PricingResult{}, fmt.Errorf("pricing: service: %w", err)
		}
		base = svc.PriceFor(pc.Quantity)
	}
	rules, err := e.repo.ListPricingRules(ctx)
	if err != nil {
		return model.PricingResult{}, fmt.Errorf("pricing: rules: %w", err)
	}
	q := &quote{pc: pc, base: base, geocoder: geo.NewMemo(e.geocoder)}

	res := model.PricingResult{BasePrice: model.Round2(base), CalculatedAt: e.now()}
	for _, r := range rules {
		if !r.Enabled || r.Config == nil {
			continue
		}
		adj, ok := e.apply(ctx, q, r)
		if !ok {
			continue
		}
		res.Adjustments = append(res.Adjustments, adj)
		if adj.CustomerVisible {
			res.Breakdown = append(res.Breakdown, adj)
		}
		if adj.Direction == model.Discount {
			res.TotalDiscount += adj.Amount
		} else {
			res.TotalPremium += adj.Amount
		}
	}
	res.TotalDiscount = model.Round2(res.TotalDiscount)
	res.TotalPremium = model.Round2(res.TotalPremium)
	res.FinalPrice = model.Round2(math.Max(0, base-res.TotalDiscount+res.TotalPremium))
	return res, nil
}

// CalculatePrice is the customer-facing quote: Quote, then the quote
// metrics and a QuoteEvent on the bus.
func (e *Engine) CalculatePrice(ctx context.Context, pc model.PricingContext) (model.PricingResult, error) {
	res, err := e.Quote(ctx, pc)
	if err != nil {
		return res, err
	}
	for _, adj := range res.Adjustments {
		adjustmentsTotal.WithLabelValues(string(adj.RuleType), string(adj.Direction)).Inc()
	}
	quotesTotal.Inc()
	if e.bus != nil {
		e.bus.Publish(events.QuoteEvent{
			ServiceID:     pc.ServiceID,
			CustomerID:    pc.CustomerID,
			SiteID:        pc.SiteID,
			BasePrice:     res.BasePrice,
			FinalPrice:    res.FinalPrice,
			TotalDiscount: res.TotalDiscount,
			TotalPremium:  res.TotalPremium,
			Adjustments:   len(res.Adjustments),
			Time:          res.CalculatedAt,
		})
	}
	return res, nil
}

func (e *Engine) apply(ctx context.Context, q *quote, r model.PricingRule) (model.PricingAdjustment, bool) {
	var pct float64
	var dir model.Direction
	var why string

	switch cfg := r.Config.(type) {
	case model.ClusterConfig:
		n, err := e.nearbyJobs(ctx, q, cfg)
		if err != nil {
			e.log.Warnf("pricing: cluster rule %s skipped: %v", r.ID, err)
			return model.PricingAdjustment{}, false
		}
		pct = ClusterPercent(cfg, n)
		dir = model.Discount
		why = fmt.Sprintf("%d jobs already booked within %.0f km", n, cfg.RadiusKm)
	case model.UrgencyConfig:
		days := model.DaysBetween(e.now(), q.pc.Date)
		pct = UrgencyPercent(cfg, days)
		dir = model.Premium
		why = fmt.Sprintf("visit in %d days", days)
	case model.OffPeakConfig:
		wd := q.pc.Date.Weekday()
		for _, d := range cfg.Weekdays {
			if d == wd {
				pct = cfg.DiscountPercent
			}
		}
		dir = model.Discount
		why = fmt.Sprintf("off-peak %s", wd)
	case model.FlexConfig:
		if q.pc.Flexibility == model.FlexFlexibleWeek {
			pct = cfg.DiscountPercent
		}
		dir = model.Discount
		why = "flexible within the week"
	case model.LoyaltyConfig:
		n, err := e.completedBookings(ctx, q.pc.CustomerID)
		if err != nil {
			e.log.Warnf("pricing: loyalty rule %s skipped: %v", r.ID, err)
			return model.PricingAdjustment{}, false
		}
		pct = LoyaltyPercent(cfg, n)
		dir = model.Discount
		why = fmt.Sprintf("%d completed bookings", n)
	case model.BundleConfig:
		// Bundles are priced by the bundle purchase flow.
		return model.PricingAdjustment{}, false
	default:
		e.log.Warnf("pricing: rule %s has unsupported config %T", r.ID, cfg)
		return model.PricingAdjustment{}, false
	}
	if pct <= 0 {
		return model.PricingAdjustment{}, false
	}
	return model.PricingAdjustment{
		RuleID:          r.ID,
		RuleName:        r.Name,
		RuleType:        r.Type(),
		Direction:       dir,
		Amount:          model.Round2(q.base * pct / 100),
		Percent:         model.Round2(pct),
		CustomerVisible: r.CustomerVisible,
		Explanation:     why,
	}, true
}

// ClusterPercent scales the discount with each nearby job beyond the
// minimum, capped at one and a half times the base discount.
func ClusterPercent(cfg model.ClusterConfig, nearby int) float64 {
	if nearby < cfg.MinJobs || nearby == 0 {
		return 0
	}
	pct := cfg.DiscountPercent * (1 + clusterStep*float64(nearby-cfg.MinJobs))
	return math.Min(pct, cfg.DiscountPercent*clusterCapFactor)
}

// UrgencyPercent is the full premium at zero or one day out, falling
// linearly to zero at the threshold.
func UrgencyPercent(cfg model.UrgencyConfig, days int) float64 {
	switch {
	case days < 0:
		return 0
	case days <= 1:
		return cfg.PremiumPercent
	case days >= cfg.DaysThreshold:
		return 0
	default:
		return cfg.PremiumPercent * float64(cfg.DaysThreshold-days) / float64(cfg.DaysThreshold-1)
	}
}

// LoyaltyPercent multiplies the discount at two and three times the
// threshold, capped at 15%.
func LoyaltyPercent(cfg model.LoyaltyConfig, completed int) float64 {
	if cfg.MinBookings <= 0 || completed < cfg.MinBookings {
		return 0
	}
	mult := 1.0
	switch {
	case completed >= 3*cfg.MinBookings:
		mult = 2
	case completed >= 2*cfg.MinBookings:
		mult = 1.5
	}
	return math.Min(loyaltyCapPercent, cfg.DiscountPercent*mult)
}

func (e *Engine) nearbyJobs(ctx context.Context, q *quote, cfg model.ClusterConfig) (int, error) {
	if q.pc.SiteID == "" {
		return 0, fmt.Errorf("no site")
	}
	site, err := e.repo.GetSite(ctx, q.pc.SiteID)
	if err != nil {
		return 0, err
	}
	origin, err := geo.Locate(ctx, q.geocoder, site.Coordinates, site.Postcode)
	if err != nil {
		return 0, err
	}
	f := store.BookingFilter{From: q.pc.Date, To: q.pc.Date, Statuses: store.ScheduledStatuses}
	if cfg.EngineerScoped {
		if q.pc.EngineerID == "" {
			return 0, nil
		}
		f.EngineerID = q.pc.EngineerID
	}
	bookings, err := e.repo.ListBookings(ctx, f)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range bookings {
		c, err := q.geocoder.Lookup(ctx, b.Postcode)
		if err != nil {
			continue
		}
		if geo.HaversineKm(origin, c) <= cfg.RadiusKm {
			n++
		}
	}
	return n, nil
}

func (e *Engine) completedBookings(ctx context.Context, customerID string) (int, error) {
	if customerID == "" {
		return 0, nil
	}
	bookings, err := e.repo.ListBookings(ctx, store.BookingFilter{
		CustomerID: customerID,
		Statuses:   []model.BookingStatus{model.StatusCompleted},
	})
	if err != nil {
		return 0, err
	}
	return len(bookings), nil
}

// Simulation compares a flexible and a fixed-date quote.
type Simulation struct {
	WithFlexibility    model.PricingResult `json:"with_flexibility"`
	WithoutFlexibility model.PricingResult `json:"without_flexibility"`
	PotentialSavings   float64             `json:"potential_savings"`
}

// SimulatePricing quotes the same job as flexible within the week and as a
// fixed date.
func (e *Engine) SimulatePricing(ctx context.Context, siteID, serviceID string, date time.Time, customerID string) (Simulation, error) {
	pc := model.PricingContext{SiteID: siteID, ServiceID: serviceID, CustomerID: customerID, Date: date, Quantity: 1}
	pc.Flexibility = model.FlexFlexibleWeek
	with, err := e.CalculatePrice(ctx, pc)
	if err != nil {
		return Simulation{}, err
	}
	pc.Flexibility = model.FlexExact
	without, err := e.CalculatePrice(ctx, pc)
	if err != nil {
		return Simulation{}, err
	}
	return Simulation{
		WithFlexibility:    with,
		WithoutFlexibility: without,
		PotentialSavings:   model.Round2(math.Max(0, without.FinalPrice-with.FinalPrice)),
	}, nil
}
