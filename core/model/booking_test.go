package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysBetween(t *testing.T) {
	now := time.Date(2026, 3, 2, 16, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysBetween(now, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, DaysBetween(now, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 14, DaysBetween(now, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)))
}

func TestJobRequestPrefers(t *testing.T) {
	r := JobRequest{}
	assert.True(t, r.Prefers(Afternoon))
	r.PreferredSlots = []HalfDay{Morning}
	assert.True(t, r.Prefers(Morning))
	assert.False(t, r.Prefers(Afternoon))
	assert.Equal(t, 1, r.Units())
}

func TestEngineerCoverageRadiusPicksLongestPrefix(t *testing.T) {
	e := Engineer{Coverage: []CoverageArea{
		{PostcodePrefix: "M", RadiusKm: 30},
		{PostcodePrefix: "M1", RadiusKm: 10},
	}}
	r, ok := e.CoverageRadius("m1 4bt")
	assert.True(t, ok)
	assert.Equal(t, 10.0, r)
	_, ok = e.CoverageRadius("LS1 1AA")
	assert.False(t, ok)
}

func TestQualificationValidOn(t *testing.T) {
	q := Qualification{Expiry: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, q.ValidOn(time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)))
	assert.False(t, q.ValidOn(time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)))
}
