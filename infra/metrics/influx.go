package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/fieldalloc/core/metrics"
	"github.com/kilianp07/fieldalloc/infra/logger"
)

const writeTimeout = 5 * time.Second

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes allocation events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: writeTimeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAllocation writes the decision as an allocation_decision point.
func (s *InfluxSink) RecordAllocation(ev coremetrics.AllocationDecision) error {
	p := write.NewPointWithMeasurement("allocation_decision").
		AddTag("booking_id", ev.BookingID).
		AddTag("outcome", ev.Outcome)
	if ev.EngineerID != "" {
		p = p.AddTag("engineer_id", ev.EngineerID)
	}
	p = p.AddField("composite", round3(ev.Composite)).
		AddField("customer_score", round3(ev.CustomerScore)).
		AddField("engineer_score", round3(ev.EngineerScore)).
		AddField("platform_score", round3(ev.PlatformScore)).
		AddField("candidates", ev.CandidateCount).
		AddField("viable", ev.ViableCount).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordShadowComparison(ev coremetrics.ShadowComparison) error {
	p := write.NewPointWithMeasurement("shadow_comparison").
		AddTag("booking_id", ev.BookingID).
		AddTag("decision_changed", strconv.FormatBool(ev.DecisionChanged)).
		AddField("engineer_id", ev.EngineerID).
		AddField("legacy_engineer_id", ev.LegacyEngineerID).
		AddField("improvement_percent", round3(ev.ImprovementPercent)).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordOverride(ev coremetrics.OverrideRecord) error {
	p := write.NewPointWithMeasurement("allocation_override").
		AddTag("booking_id", ev.BookingID).
		AddTag("engineer_id", ev.EngineerID).
		AddField("previous_engineer_id", ev.PreviousEngineerID).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordOutcome(ev coremetrics.OutcomeRecord) error {
	p := write.NewPointWithMeasurement("booking_outcome").
		AddTag("status", ev.Status)
	if ev.District != "" {
		p = p.AddTag("district", ev.District)
	}
	p = p.AddField("booking_id", ev.BookingID).
		AddField("engineer_id", ev.EngineerID).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordQuote(ev coremetrics.QuoteRecord) error {
	p := write.NewPointWithMeasurement("price_quote").
		AddTag("service_id", ev.ServiceID).
		AddField("base_price", round3(ev.BasePrice)).
		AddField("final_price", round3(ev.FinalPrice)).
		AddField("discount", round3(ev.TotalDiscount)).
		AddField("premium", round3(ev.TotalPremium)).
		AddField("adjustments", ev.Adjustments).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordRecalc(ev coremetrics.RecalcRecord) error {
	p := write.NewPointWithMeasurement("metric_recalc").
		AddTag("kind", ev.Kind).
		AddField("processed", ev.Processed).
		AddField("failed", ev.Failed).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
