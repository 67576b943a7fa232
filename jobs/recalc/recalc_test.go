package recalc

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/core/events"
	"github.com/kilianp07/fieldalloc/core/model"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
)

type fakeLister struct {
	districts []string
	customers []string
	err       error
}

func (f fakeLister) ListDistricts(context.Context) ([]string, error)   { return f.districts, f.err }
func (f fakeLister) ListCustomerIDs(context.Context) ([]string, error) { return f.customers, f.err }

type fakeRecalc struct {
	mu       sync.Mutex
	seen     []string
	fail     map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeRecalc) do(id string) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	f.mu.Lock()
	f.seen = append(f.seen, id)
	f.mu.Unlock()
	if f.fail[id] {
		return errors.New("db down")
	}
	return nil
}

func (f *fakeRecalc) Recalculate(_ context.Context, id string) (model.CustomerMetrics, error) {
	return model.CustomerMetrics{CustomerID: id}, f.do(id)
}

type fakeAreas struct{ *fakeRecalc }

func (f fakeAreas) Recalculate(_ context.Context, id string) (model.AreaIntelligence, error) {
	return model.AreaIntelligence{District: id}, f.do(id)
}

func (f *fakeRecalc) sorted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.seen...)
	sort.Strings(out)
	return out
}

func TestRunner_RunAreasBoundedAndPublishes(t *testing.T) {
	areas := &fakeRecalc{fail: map[string]bool{"M4": true}, delay: 5 * time.Millisecond}
	bus := eventbus.New()
	sub := bus.Subscribe()
	r := NewRunner(fakeLister{districts: []string{"M1", "M2", "M3", "M4", "M5", "M6"}}, fakeAreas{areas}, &fakeRecalc{}, bus, nil, Config{Workers: 2})

	res, err := r.RunAreas(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "area M4")
	assert.Equal(t, 6, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.LessOrEqual(t, areas.peak.Load(), int32(2))
	assert.Equal(t, []string{"M1", "M2", "M3", "M4", "M5", "M6"}, areas.sorted())

	select {
	case ev := <-sub:
		re, ok := ev.(events.RecalcEvent)
		require.True(t, ok)
		assert.Equal(t, KindArea, re.Kind)
		assert.Equal(t, 6, re.Processed)
		assert.Equal(t, 1, re.Failed)
	case <-time.After(time.Second):
		t.Fatal("no recalc event")
	}
}

func TestRunner_StopsOnCancel(t *testing.T) {
	customers := &fakeRecalc{}
	r := NewRunner(fakeLister{customers: []string{"c1", "c2", "c3"}}, fakeAreas{&fakeRecalc{}}, customers, nil, nil, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.RunCustomers(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Processed)
	assert.Empty(t, customers.sorted())
}

func TestRunner_RunAllJoinsErrors(t *testing.T) {
	r := NewRunner(fakeLister{err: errors.New("no db")}, fakeAreas{&fakeRecalc{}}, &fakeRecalc{}, nil, nil, Config{})
	err := r.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list districts")
	assert.Contains(t, err.Error(), "list customers")
}

func TestScheduler_RegistersSchedules(t *testing.T) {
	r := NewRunner(fakeLister{}, fakeAreas{&fakeRecalc{}}, &fakeRecalc{}, nil, nil, Config{})

	s, err := NewScheduler(r, Config{AreaSchedule: "0 3 * * *", CustomerSchedule: "@hourly"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())
	s.Start()
	s.Stop(context.Background())

	s, err = NewScheduler(r, Config{AreaSchedule: "0 3 * * *"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())

	_, err = NewScheduler(r, Config{CustomerSchedule: "not a cron"}, nil)
	assert.Error(t, err)
}

func TestOutcomeWatcher(t *testing.T) {
	areas := &fakeRecalc{}
	customers := &fakeRecalc{}
	w := NewOutcomeWatcher(fakeAreas{areas}, customers, nil)
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, bus)

	require.Eventually(t, func() bool {
		bus.Publish(events.BookingOutcome{BookingID: "b1", CustomerID: "c1", Postcode: "m41aa", Status: model.StatusCompleted})
		return len(customers.sorted()) > 0 && len(areas.sorted()) > 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "c1", customers.sorted()[0])
	assert.Equal(t, "M4", areas.sorted()[0])
}
