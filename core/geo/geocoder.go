package geo

import (
	"context"
	"errors"
	"sync"

	"github.com/kilianp07/fieldalloc/core/model"
)

// ErrPostcodeNotFound is returned when a postcode cannot be resolved.
var ErrPostcodeNotFound = errors.New("geo: postcode not found")

// Geocoder resolves a postcode to coordinates.
type Geocoder interface {
	Lookup(ctx context.Context, postcode string) (model.Coordinates, error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, postcode string) (model.Coordinates, error)

func (f GeocoderFunc) Lookup(ctx context.Context, postcode string) (model.Coordinates, error) {
	return f(ctx, postcode)
}

// StaticGeocoder serves coordinates from a fixed table keyed by normalized
// postcode. It is used by tests and the demo dataset.
type StaticGeocoder map[string]model.Coordinates

func (s StaticGeocoder) Lookup(_ context.Context, postcode string) (model.Coordinates, error) {
	c, ok := s[Normalize(postcode)]
	if !ok {
		return model.Coordinates{}, ErrPostcodeNotFound
	}
	return c, nil
}

type memoEntry struct {
	once  sync.Once
	coord model.Coordinates
	err   error
}

// Memo memoises lookups of an underlying Geocoder. Concurrent lookups of the
// same postcode share one upstream call. Failures are memoised too, so a
// postcode that failed once is not retried for the lifetime of the Memo.
type Memo struct {
	next Geocoder

	mu      sync.Mutex
	entries map[string]*memoEntry
}

// NewMemo wraps next with a request-scoped memo.
func NewMemo(next Geocoder) *Memo {
	return &Memo{next: next, entries: map[string]*memoEntry{}}
}

func (m *Memo) Lookup(ctx context.Context, postcode string) (model.Coordinates, error) {
	key := Normalize(postcode)
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoEntry{}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.coord, e.err = m.next.Lookup(ctx, key)
	})
	return e.coord, e.err
}

// Locate returns known coordinates when present, otherwise looks the
// postcode up.
func Locate(ctx context.Context, g Geocoder, known *model.Coordinates, postcode string) (model.Coordinates, error) {
	if known != nil {
		return *known, nil
	}
	if g == nil {
		return model.Coordinates{}, ErrPostcodeNotFound
	}
	return g.Lookup(ctx, postcode)
}
