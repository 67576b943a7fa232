package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsAdjustKeepsSum(t *testing.T) {
	cases := []struct {
		name  string
		start Weights
		party Party
		value float64
	}{
		{"raise customer", DefaultWeights(), PartyCustomer, 0.6},
		{"zero engineer", DefaultWeights(), PartyEngineer, 0},
		{"all platform", DefaultWeights(), PartyPlatform, 1},
		{"others empty", Weights{Customer: 1}, PartyCustomer, 0.5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w, err := c.start.Adjust(c.party, c.value)
			require.NoError(t, err)
			assert.InDelta(t, 1, w.Customer+w.Engineer+w.Platform, 1e-9)
			assert.InDelta(t, c.value, w.Of(c.party), 1e-9)
			assert.NoError(t, w.Validate())
		})
	}
}

func TestWeightsAdjustIsProportional(t *testing.T) {
	w, err := DefaultWeights().Adjust(PartyCustomer, 0.7)
	require.NoError(t, err)
	assert.InDelta(t, 0.15, w.Engineer, 1e-9)
	assert.InDelta(t, 0.15, w.Platform, 1e-9)

	w, err = Weights{Customer: 0.5, Engineer: 0.4, Platform: 0.1}.Adjust(PartyCustomer, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, w.Engineer, 1e-9)
	assert.InDelta(t, 0.2, w.Platform, 1e-9)
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.Error(t, Weights{Customer: 0.5, Engineer: 0.5, Platform: 0.5}.Validate())
	assert.Error(t, Weights{Customer: -0.2, Engineer: 0.6, Platform: 0.6}.Validate())
	assert.Error(t, Weights{Customer: math.NaN()}.Validate())
	_, err := DefaultWeights().Adjust(PartyCustomer, 1.2)
	assert.Error(t, err)
}

func TestNewFactorClampsAndContributes(t *testing.T) {
	for _, raw := range []float64{-20, 0, 37.456, 100, 140} {
		f := NewFactor("x", PartyCustomer, 0.25, raw, "pts", raw, "")
		assert.GreaterOrEqual(t, f.Score, 0.0)
		assert.LessOrEqual(t, f.Score, 100.0)
		assert.Equal(t, f.Score*f.Weight, f.Contribution)
	}
}

func TestAggregate(t *testing.T) {
	factors := []ScoreFactor{
		NewFactor("a", PartyCustomer, 0.5, 0, "", 80, ""),
		NewFactor("b", PartyCustomer, 0.5, 0, "", 60, ""),
		NewFactor("c", PartyEngineer, 1, 0, "", 50, ""),
		NewFactor("d", PartyPlatform, 1, 0, "", 90, ""),
	}
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s := Aggregate(factors, DefaultWeights(), at)
	assert.Equal(t, 70.0, s.Customer)
	assert.Equal(t, 50.0, s.Engineer)
	assert.Equal(t, 90.0, s.Platform)
	assert.Equal(t, 70.0, s.Composite)
	assert.Equal(t, 70, s.Display())
	assert.Equal(t, at, s.CalculatedAt)
}
