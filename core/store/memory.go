package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/geo"
	"github.com/kilianp07/fieldalloc/core/model"
)

// MemoryStore is an in-process Repository used by tests and the demo CLI.
type MemoryStore struct {
	mu sync.RWMutex

	bookings  map[string]model.Booking
	engineers map[string]model.Engineer
	sites     map[string]model.Site
	services  map[string]model.Service
	rules     map[string]model.PricingRule
	areas     map[string]model.AreaIntelligence
	customers map[string]model.CustomerMetrics

	allocationLogs []model.AllocationLog
	scoreLogs      []model.ScoreLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:  map[string]model.Booking{},
		engineers: map[string]model.Engineer{},
		sites:     map[string]model.Site{},
		services:  map[string]model.Service{},
		rules:     map[string]model.PricingRule{},
		areas:     map[string]model.AreaIntelligence{},
		customers: map[string]model.CustomerMetrics{},
	}
}

var _ Repository = (*MemoryStore)(nil)

func (s *MemoryStore) PutBooking(b model.Booking) {
	s.mu.Lock()
	s.bookings[b.ID] = b
	s.mu.Unlock()
}

func (s *MemoryStore) PutEngineer(e model.Engineer) {
	s.mu.Lock()
	s.engineers[e.ID] = e
	s.mu.Unlock()
}

func (s *MemoryStore) PutSite(site model.Site) {
	s.mu.Lock()
	s.sites[site.ID] = site
	s.mu.Unlock()
}

func (s *MemoryStore) PutService(svc model.Service) {
	s.mu.Lock()
	s.services[svc.ID] = svc
	s.mu.Unlock()
}

func (s *MemoryStore) GetBooking(_ context.Context, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, apperr.NotFoundf("store.GetBooking", "booking %s not found", id)
	}
	return b, nil
}

func (s *MemoryStore) ListBookings(_ context.Context, f BookingFilter) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Booking, 0)
	for _, b := range s.bookings {
		if f.Match(b, bookingDistrict(b)) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].StartTime.Equal(res[j].StartTime) {
			return res[i].StartTime.Before(res[j].StartTime)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func bookingDistrict(b model.Booking) string {
	if b.Postcode == "" {
		return ""
	}
	return geo.District(b.Postcode)
}

func (s *MemoryStore) AssignEngineer(_ context.Context, p AssignParams) (model.Booking, error) {
	const op = "store.AssignEngineer"
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[p.BookingID]
	if !ok {
		return model.Booking{}, apperr.NotFoundf(op, "booking %s not found", p.BookingID)
	}
	if b.Status != p.ExpectedStatus || b.EngineerID != p.ExpectedEngineerID || b.Version != p.ExpectedVersion {
		return model.Booking{}, apperr.Conflictf(op, "booking %s changed since read", p.BookingID)
	}
	b.EngineerID = p.EngineerID
	b.Status = p.NewStatus
	b.ScheduledDate = model.Day(p.Date)
	b.ScheduledSlot = p.Slot
	b.StartTime = p.StartTime
	if p.DurationMinutes > 0 {
		b.DurationMinutes = p.DurationMinutes
	}
	if p.Price > 0 {
		b.Price = p.Price
	}
	b.Version++
	s.bookings[b.ID] = b
	return b, nil
}

func (s *MemoryStore) UpdateBookingStatus(_ context.Context, id string, expected, next model.BookingStatus) (model.Booking, error) {
	const op = "store.UpdateBookingStatus"
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, apperr.NotFoundf(op, "booking %s not found", id)
	}
	if b.Status != expected {
		return model.Booking{}, apperr.Conflictf(op, "booking %s is %s, expected %s", id, b.Status, expected)
	}
	b.Status = next
	b.Version++
	s.bookings[id] = b
	return b, nil
}

func (s *MemoryStore) GetEngineer(_ context.Context, id string) (model.Engineer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engineers[id]
	if !ok {
		return model.Engineer{}, apperr.NotFoundf("store.GetEngineer", "engineer %s not found", id)
	}
	return e, nil
}

func (s *MemoryStore) ListEngineers(_ context.Context, f EngineerFilter) ([]model.Engineer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Engineer, 0, len(s.engineers))
	for _, e := range s.engineers {
		if f.ApprovedOnly && !e.Approved {
			continue
		}
		if f.ServiceID != "" {
			if _, ok := e.Competency(f.ServiceID); !ok {
				continue
			}
		}
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) GetSite(_ context.Context, id string) (model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return model.Site{}, apperr.NotFoundf("store.GetSite", "site %s not found", id)
	}
	return site, nil
}

func (s *MemoryStore) GetService(_ context.Context, id string) (model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, apperr.NotFoundf("store.GetService", "service %s not found", id)
	}
	return svc, nil
}

func (s *MemoryStore) ListPricingRules(_ context.Context) ([]model.PricingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.PricingRule, 0, len(s.rules))
	for _, r := range s.rules {
		res = append(res, r)
	}
	SortRules(res)
	return res, nil
}

// SortRules orders rules by ascending priority, then id.
func SortRules(rules []model.PricingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

func (s *MemoryStore) GetPricingRule(_ context.Context, id string) (model.PricingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return model.PricingRule{}, apperr.NotFoundf("store.GetPricingRule", "pricing rule %s not found", id)
	}
	return r, nil
}

func (s *MemoryStore) SavePricingRule(_ context.Context, r model.PricingRule) error {
	s.mu.Lock()
	s.rules[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAreaIntelligence(_ context.Context, district string) (model.AreaIntelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.areas[district]
	if !ok {
		return model.AreaIntelligence{}, apperr.NotFoundf("store.GetAreaIntelligence", "no intelligence for %s", district)
	}
	return a, nil
}

func (s *MemoryStore) UpsertAreaIntelligence(_ context.Context, a model.AreaIntelligence) error {
	s.mu.Lock()
	s.areas[a.District] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetCustomerMetrics(_ context.Context, customerID string) (model.CustomerMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.customers[customerID]
	if !ok {
		return model.CustomerMetrics{}, apperr.NotFoundf("store.GetCustomerMetrics", "no metrics for %s", customerID)
	}
	return m, nil
}

func (s *MemoryStore) UpsertCustomerMetrics(_ context.Context, m model.CustomerMetrics) error {
	s.mu.Lock()
	s.customers[m.CustomerID] = m
	s.mu.Unlock()
	return nil
}

// ListDistricts returns every district with at least one booking.
func (s *MemoryStore) ListDistricts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, b := range s.bookings {
		if d := bookingDistrict(b); d != "" {
			seen[d] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

// ListCustomerIDs returns every customer with at least one booking.
func (s *MemoryStore) ListCustomerIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, b := range s.bookings {
		if b.Request.CustomerID != "" {
			seen[b.Request.CustomerID] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) AppendAllocationLog(_ context.Context, l model.AllocationLog) error {
	s.mu.Lock()
	s.allocationLogs = append(s.allocationLogs, l)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AppendScoreLogs(_ context.Context, logs []model.ScoreLog) error {
	s.mu.Lock()
	s.scoreLogs = append(s.scoreLogs, logs...)
	s.mu.Unlock()
	return nil
}

// AllocationLogs returns a copy of the appended allocation logs.
func (s *MemoryStore) AllocationLogs() []model.AllocationLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AllocationLog(nil), s.allocationLogs...)
}

// ScoreLogs returns a copy of the appended score logs.
func (s *MemoryStore) ScoreLogs() []model.ScoreLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ScoreLog(nil), s.scoreLogs...)
}
