package allocation

import (
	"context"
	"errors"
)

// LegacyAllocator is the previous allocation engine, consulted in shadow
// mode only.
type LegacyAllocator interface {
	FindBestEngineer(ctx context.Context, bookingID string) (engineerID string, score float64, err error)
}

// LegacyFunc adapts a function to LegacyAllocator.
type LegacyFunc func(ctx context.Context, bookingID string) (string, float64, error)

func (f LegacyFunc) FindBestEngineer(ctx context.Context, bookingID string) (string, float64, error) {
	return f(ctx, bookingID)
}

// ErrNoLegacy is reported in shadow comparisons when no legacy allocator is
// configured.
var ErrNoLegacy = errors.New("no legacy allocator configured")
