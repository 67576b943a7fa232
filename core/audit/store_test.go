package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/core/factory"
	"github.com/kilianp07/fieldalloc/core/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func records() []DecisionRecord {
	return []DecisionRecord{
		{
			ID: "d1", Timestamp: t0, Kind: KindAllocation, BookingID: "b1", EngineerID: "e1",
			Composite: 81.5, Weights: model.DefaultWeights(), CandidateCount: 3, ViableCount: 2, Applied: true,
			Candidates: []CandidateSummary{{EngineerID: "e1", Viable: true}, {EngineerID: "e2", Viable: true}},
		},
		{
			ID: "d2", Timestamp: t0.Add(time.Hour), Kind: KindShadow, BookingID: "b2", EngineerID: "e3",
			Legacy: &model.LegacyComparison{EngineerID: "e1", DecisionChanged: true, ImprovementPercent: 12.5},
		},
		{
			ID: "d3", Timestamp: t0.Add(2 * time.Hour), Kind: KindOverride, BookingID: "b1",
			EngineerID: "e4", PreviousEngineerID: "e1", Reason: "customer request",
		},
	}
}

func TestQueryMatch(t *testing.T) {
	recs := records()
	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"all", Query{}, []string{"d1", "d2", "d3"}},
		{"booking", Query{BookingID: "b1"}, []string{"d1", "d3"}},
		{"kind", Query{Kind: KindShadow}, []string{"d2"}},
		{"engineer as alternative", Query{EngineerID: "e2"}, []string{"d1"}},
		{"engineer as previous", Query{EngineerID: "e1"}, []string{"d1", "d3"}},
		{"window", Query{Start: t0.Add(30 * time.Minute), End: t0.Add(90 * time.Minute)}, []string{"d2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, r := range recs {
				if tt.q.Match(r) {
					got = append(got, r.ID)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func storeFactories(t *testing.T) map[string]func() Store {
	dir := t.TempDir()
	return map[string]func() Store{
		"jsonl": func() Store {
			s, err := NewJSONLStore(filepath.Join(dir, "plain", "decisions.jsonl"))
			require.NoError(t, err)
			return s
		},
		"rotating": func() Store {
			s, err := NewRotatingJSONLStore(filepath.Join(dir, "rot", "decisions.jsonl"), 1, 2, 1)
			require.NoError(t, err)
			return s
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(dir, "decisions.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoresAppendAndQuery(t *testing.T) {
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := mk()
			defer func() { _ = s.Close() }()
			ctx := context.Background()
			for _, r := range records() {
				require.NoError(t, s.Append(ctx, r))
			}

			all, err := s.Query(ctx, Query{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "d1", all[0].ID)
			require.NotNil(t, all[1].Legacy)
			assert.True(t, all[1].Legacy.DecisionChanged)

			byEng, err := s.Query(ctx, Query{EngineerID: "e1"})
			require.NoError(t, err)
			assert.Len(t, byEng, 2)

			last, err := s.Query(ctx, Query{Limit: 1})
			require.NoError(t, err)
			require.Len(t, last, 1)
			assert.Equal(t, "d3", last[0].ID)
		})
	}
}

func TestRotatingStoreReadsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 5, 1)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	big := make([]CandidateSummary, 400)
	for i := range big {
		big[i] = CandidateSummary{EngineerID: fmt.Sprintf("engineer-%04d", i), Reasons: []string{"no certified competency for this service"}}
	}
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		require.NoError(t, s.Append(ctx, DecisionRecord{ID: fmt.Sprint(i), Timestamp: t0.Add(time.Duration(i) * time.Minute), Candidates: big}))
	}
	files, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "decisions*.jsonl"))
	assert.Greater(t, len(files), 1)

	got, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	s, err := NewStore(factory.ModuleConfig{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	s, err = NewStore(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(t.TempDir(), "a.jsonl")}})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)

	_, err = NewStore(factory.ModuleConfig{Type: "kafka"})
	assert.Error(t, err)
}
