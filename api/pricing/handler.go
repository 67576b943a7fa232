// Package pricing exposes quotes and pricing rule management over HTTP.
package pricing

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/fieldalloc/api/respond"
	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/model"
	corepricing "github.com/kilianp07/fieldalloc/core/pricing"
	"github.com/kilianp07/fieldalloc/core/store"
)

// Quoter computes prices.
type Quoter interface {
	CalculatePrice(ctx context.Context, pc model.PricingContext) (model.PricingResult, error)
	SimulatePricing(ctx context.Context, siteID, serviceID string, date time.Time, customerID string) (corepricing.Simulation, error)
}

// Handler serves pricing endpoints.
type Handler struct {
	quoter Quoter
	rules  store.PricingStore
}

// NewHandler builds a handler. rules may be nil to disable rule management.
func NewHandler(q Quoter, rules store.PricingStore) *Handler {
	return &Handler{quoter: q, rules: rules}
}

// Register mounts the routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/pricing/quote", h.quote)
	rg.GET("/pricing/simulate", h.simulate)
	if h.rules != nil {
		rg.GET("/pricing/rules", h.listRules)
		rg.PUT("/pricing/rules/:id", h.saveRule)
	}
}

type quoteRequest struct {
	SiteID      string            `json:"site_id"`
	ServiceID   string            `json:"service_id" binding:"required_without=BasePrice"`
	CustomerID  string            `json:"customer_id"`
	EngineerID  string            `json:"engineer_id"`
	Date        time.Time         `json:"date" binding:"required"`
	HalfDay     model.HalfDay     `json:"half_day" binding:"omitempty,oneof=am pm"`
	Quantity    int               `json:"quantity" binding:"gte=0"`
	Flexibility model.Flexibility `json:"flexibility" binding:"omitempty,oneof=exact flexible_day flexible_week"`
	BasePrice   float64           `json:"base_price" binding:"gte=0"`
	// Full includes rules hidden from customers in the response.
	Full bool `json:"full"`
}

func (h *Handler) quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}
	pc := model.PricingContext{
		SiteID:      req.SiteID,
		ServiceID:   req.ServiceID,
		CustomerID:  req.CustomerID,
		EngineerID:  req.EngineerID,
		Date:        req.Date,
		HalfDay:     req.HalfDay,
		Quantity:    req.Quantity,
		Flexibility: req.Flexibility,
		BasePrice:   req.BasePrice,
	}
	if pc.Flexibility == "" {
		pc.Flexibility = model.FlexExact
	}
	res, err := h.quoter.CalculatePrice(c.Request.Context(), pc)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if !req.Full {
		res.Adjustments = nil
	}
	c.JSON(http.StatusOK, res)
}

type simulateQuery struct {
	SiteID     string `form:"site_id"`
	ServiceID  string `form:"service_id" binding:"required"`
	Date       string `form:"date" binding:"required,datetime=2006-01-02"`
	CustomerID string `form:"customer_id"`
}

func (h *Handler) simulate(c *gin.Context) {
	var q simulateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respond.BadRequest(c, err)
		return
	}
	date, _ := time.Parse(time.DateOnly, q.Date)
	sim, err := h.quoter.SimulatePricing(c.Request.Context(), q.SiteID, q.ServiceID, date, q.CustomerID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sim)
}

func (h *Handler) listRules(c *gin.Context) {
	rules, err := h.rules.ListPricingRules(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *Handler) saveRule(c *gin.Context) {
	var rule model.PricingRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		respond.BadRequest(c, err)
		return
	}
	rule.ID = c.Param("id")
	if err := rule.Validate(); err != nil {
		respond.Error(c, apperr.Wrap(apperr.ValidationFailure, "pricing.SaveRule", err))
		return
	}
	if err := h.rules.SavePricingRule(c.Request.Context(), rule); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}
