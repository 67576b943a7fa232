package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fieldalloc/core/model"
	corepricing "github.com/kilianp07/fieldalloc/core/pricing"
	"github.com/kilianp07/fieldalloc/core/store"
)

type fakeQuoter struct {
	pc   model.PricingContext
	date time.Time
}

func (f *fakeQuoter) CalculatePrice(_ context.Context, pc model.PricingContext) (model.PricingResult, error) {
	f.pc = pc
	adj := model.PricingAdjustment{RuleID: "r1", Direction: model.Discount, Amount: 10}
	return model.PricingResult{
		BasePrice:   100,
		FinalPrice:  90,
		Adjustments: []model.PricingAdjustment{adj},
		Breakdown:   []model.PricingAdjustment{adj},
	}, nil
}

func (f *fakeQuoter) SimulatePricing(_ context.Context, _, _ string, date time.Time, _ string) (corepricing.Simulation, error) {
	f.date = date
	return corepricing.Simulation{PotentialSavings: 5}, nil
}

func newServer(q Quoter, rules store.PricingStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(q, rules).Register(r.Group("/api"))
	return r
}

func send(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestQuote(t *testing.T) {
	q := &fakeQuoter{}
	r := newServer(q, nil)

	rr := send(r, http.MethodPost, "/api/pricing/quote", `{"date":"2026-03-04T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "service or base price required")

	rr = send(r, http.MethodPost, "/api/pricing/quote", `{"service_id":"pat","date":"2026-03-04T00:00:00Z","quantity":10}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.FlexExact, q.pc.Flexibility)
	assert.Equal(t, 10, q.pc.Quantity)

	var res model.PricingResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 90.0, res.FinalPrice)
	assert.Empty(t, res.Adjustments, "full breakdown hidden by default")
	assert.Len(t, res.Breakdown, 1)

	rr = send(r, http.MethodPost, "/api/pricing/quote", `{"base_price":120,"date":"2026-03-04T00:00:00Z","full":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Len(t, res.Adjustments, 1)
}

func TestSimulate(t *testing.T) {
	q := &fakeQuoter{}
	r := newServer(q, nil)

	rr := send(r, http.MethodGet, "/api/pricing/simulate?service_id=pat&date=04/03/2026", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = send(r, http.MethodGet, "/api/pricing/simulate?service_id=pat&date=2026-03-04", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), q.date)
	assert.Contains(t, rr.Body.String(), `"potential_savings":5`)
}

func TestRules(t *testing.T) {
	rules := store.NewMemoryStore()
	r := newServer(&fakeQuoter{}, rules)

	rr := send(r, http.MethodPut, "/api/pricing/rules/r1", `{"name":"Urgent","type":"urgency","priority":1,"enabled":true,"config":{"days_threshold":0,"premium_percent":20}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = send(r, http.MethodPut, "/api/pricing/rules/r1", `{"name":"Urgent","type":"urgency","priority":1,"enabled":true,"config":{"days_threshold":3,"premium_percent":20}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = send(r, http.MethodPut, "/api/pricing/rules/r2", `{"name":"Odd","type":"surge","config":{}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = send(r, http.MethodGet, "/api/pricing/rules", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Rules []model.PricingRule `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Rules, 1)
	assert.Equal(t, "r1", out.Rules[0].ID)
	assert.Equal(t, model.UrgencyConfig{DaysThreshold: 3, PremiumPercent: 20}, out.Rules[0].Config)
}
