package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/fieldalloc/core/metrics"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(data)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) only(t *testing.T, p *write.Point) {
	t.Helper()
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.bodies) != 1 || l.bodies[0] != exp {
		t.Errorf("unexpected bodies: %#v, want %q", l.bodies, exp)
	}
}

func TestInfluxSink_RecordAllocation(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.AllocationDecision{
		BookingID:      "b1",
		EngineerID:     "e1",
		Outcome:        "applied",
		Composite:      81.23456,
		CustomerScore:  30,
		EngineerScore:  25.5,
		PlatformScore:  25.7346,
		CandidateCount: 4,
		ViableCount:    2,
		Latency:        1500 * time.Microsecond,
		Time:           now,
	}
	if err := sink.RecordAllocation(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("allocation_decision").
		AddTag("booking_id", "b1").
		AddTag("outcome", "applied").
		AddTag("engineer_id", "e1").
		AddField("composite", 81.235).
		AddField("customer_score", 30.0).
		AddField("engineer_score", 25.5).
		AddField("platform_score", 25.735).
		AddField("candidates", 4).
		AddField("viable", 2).
		AddField("latency_ms", 1.5).
		SetTime(now)
	rec.only(t, p)
}

func TestInfluxSink_RecordAllocationNoCandidate(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	if err := sink.RecordAllocation(coremetrics.AllocationDecision{BookingID: "b2", Outcome: "no_candidate", CandidateCount: 3, Time: now}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("allocation_decision").
		AddTag("booking_id", "b2").
		AddTag("outcome", "no_candidate").
		AddField("composite", 0.0).
		AddField("customer_score", 0.0).
		AddField("engineer_score", 0.0).
		AddField("platform_score", 0.0).
		AddField("candidates", 3).
		AddField("viable", 0).
		AddField("latency_ms", 0.0).
		SetTime(now)
	rec.only(t, p)
}

func TestInfluxSink_RecordOutcome(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.OutcomeRecord{BookingID: "b1", EngineerID: "e1", District: "M4", Status: "completed", Time: now}
	if err := sink.RecordOutcome(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("booking_outcome").
		AddTag("status", "completed").
		AddTag("district", "M4").
		AddField("booking_id", "b1").
		AddField("engineer_id", "e1").
		SetTime(now)
	rec.only(t, p)
}

func TestInfluxSink_RecordQuote(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.QuoteRecord{ServiceID: "pat", BasePrice: 100, FinalPrice: 90, TotalDiscount: 10, Adjustments: 1, Time: now}
	if err := sink.RecordQuote(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("price_quote").
		AddTag("service_id", "pat").
		AddField("base_price", 100.0).
		AddField("final_price", 90.0).
		AddField("discount", 10.0).
		AddField("premium", 0.0).
		AddField("adjustments", 1).
		SetTime(now)
	rec.only(t, p)
}

func TestInfluxSink_RecordRecalc(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	ev := coremetrics.RecalcRecord{Kind: "area", Processed: 12, Failed: 1, Duration: 2 * time.Second, Time: now}
	if err := sink.RecordRecalc(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("metric_recalc").
		AddTag("kind", "area").
		AddField("processed", 12).
		AddField("failed", 1).
		AddField("duration_ms", 2000.0).
		SetTime(now)
	rec.only(t, p)
}

func TestInfluxSink_WriteErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "bad", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	if err := sink.RecordOverride(coremetrics.OverrideRecord{BookingID: "b1", EngineerID: "e3", Reason: "customer request", Time: time.Now()}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{
		URL:    srv.URL + "/api/v2/write",
		Token:  "tok",
		Org:    "org",
		Bucket: "bucket",
	})
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
