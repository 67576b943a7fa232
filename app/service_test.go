package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/config"
	"github.com/kilianp07/fieldalloc/core/factory"
	"github.com/kilianp07/fieldalloc/core/model"
)

const fixtures = `{
  "services": [{"id": "pat", "name": "PAT testing", "base_price": 100, "base_minutes": 60}],
  "sites": [{"id": "s1", "customer_id": "c1", "postcode": "M1 4BT", "coordinates": {"lat": 53.48, "lng": -2.24}}],
  "bookings": [{"id": "b1", "status": "pending", "postcode": "M1 4BT",
    "request": {"customer_id": "c1", "site_id": "s1", "service_id": "pat", "preferred_date": "2026-03-04T00:00:00Z", "flexibility": "exact", "quantity": 1}}]
}`

func newTestService(t *testing.T) *Service {
	t.Helper()
	gin.SetMode(gin.TestMode)
	upstream := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtures), 0o600))

	cfg := &config.Config{}
	cfg.Database.Fixtures = path
	cfg.Geocode.Client.BaseURL = upstream.URL
	cfg.Audit = factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(dir, "audit.jsonl")}}
	cfg.Recalc.OnOutcome = true
	cfg.Pricing.Rules = []config.RuleSeed{{
		ID: "flex", Name: "Flexible week", Type: "flex", Priority: 1, Enabled: true, CustomerVisible: true,
		Config: map[string]any{"discount_percent": 10},
	}}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })
	return svc
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServiceSeedsFixturesAndRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	b, err := svc.Repo.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)

	rules, err := svc.Repo.ListPricingRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, model.RuleFlex, rules[0].Type())
}

func TestServiceRouterQuotesWithSeededRules(t *testing.T) {
	svc := newTestService(t)
	h := svc.Router()

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)

	rr := do(h, http.MethodPost, "/api/pricing/quote",
		`{"service_id":"pat","date":"2026-03-04T00:00:00Z","quantity":1,"flexibility":"flexible_week"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res model.PricingResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.InDelta(t, 100, res.BasePrice, 1e-9)
	assert.InDelta(t, 90, res.FinalPrice, 1e-9)
}

func TestServiceStartRecordsOutcome(t *testing.T) {
	svc := newTestService(t)
	stop, err := svc.Start(context.Background())
	require.NoError(t, err)

	rr := do(svc.Router(), http.MethodPost, "/api/bookings/b1/outcome", `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	stop()

	b, err := svc.Repo.GetBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, b.Status)
}
