// Package allocation exposes the allocator over HTTP.
package allocation

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/fieldalloc/api/respond"
	coreallocation "github.com/kilianp07/fieldalloc/core/allocation"
	"github.com/kilianp07/fieldalloc/core/model"
)

// Service is the allocator surface used by the handlers.
type Service interface {
	FindBestEngineer(ctx context.Context, bookingID string, opts coreallocation.Options) (model.AllocationResult, error)
	OverrideAllocation(ctx context.Context, bookingID, engineerID, reason string) (model.Booking, error)
	GetViableSlots(ctx context.Context, req model.JobRequest, from, to time.Time, maxSlots int) ([]model.Slot, error)
	RecordOutcome(ctx context.Context, bookingID string, status model.BookingStatus) (model.Booking, error)
}

// Handler serves allocation endpoints.
type Handler struct {
	svc Service
}

// NewHandler wraps svc.
func NewHandler(svc Service) *Handler { return &Handler{svc: svc} }

// Register mounts the routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/bookings/:id/allocation", h.allocate)
	rg.POST("/bookings/:id/override", h.override)
	rg.POST("/bookings/:id/outcome", h.outcome)
	rg.POST("/slots", h.slots)
}

type allocateRequest struct {
	Weights       *model.Weights `json:"weights"`
	Shadow        bool           `json:"shadow"`
	Apply         bool           `json:"apply"`
	PreferredDate *time.Time     `json:"preferred_date"`
}

// allocate ranks candidates for a booking. An empty body previews.
func (h *Handler) allocate(c *gin.Context) {
	var req allocateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.BadRequest(c, err)
			return
		}
	}
	opts := coreallocation.Options{Weights: req.Weights, Shadow: req.Shadow, Apply: req.Apply}
	if req.PreferredDate != nil {
		opts.PreferredDate = *req.PreferredDate
	}
	res, err := h.svc.FindBestEngineer(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type overrideRequest struct {
	EngineerID string `json:"engineer_id" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

func (h *Handler) override(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}
	b, err := h.svc.OverrideAllocation(c.Request.Context(), c.Param("id"), req.EngineerID, req.Reason)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type outcomeRequest struct {
	Status model.BookingStatus `json:"status" binding:"required,oneof=completed cancelled"`
}

func (h *Handler) outcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}
	b, err := h.svc.RecordOutcome(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type slotsRequest struct {
	CustomerID     string            `json:"customer_id"`
	SiteID         string            `json:"site_id" binding:"required"`
	ServiceID      string            `json:"service_id" binding:"required"`
	PreferredSlots []model.HalfDay   `json:"preferred_slots" binding:"omitempty,dive,oneof=am pm"`
	Flexibility    model.Flexibility `json:"flexibility" binding:"omitempty,oneof=exact flexible_day flexible_week"`
	Quantity       int               `json:"quantity" binding:"gte=0"`
	From           time.Time         `json:"from" binding:"required"`
	To             time.Time         `json:"to" binding:"required"`
	MaxSlots       int               `json:"max_slots" binding:"gte=0,lte=100"`
}

func (h *Handler) slots(c *gin.Context) {
	var req slotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.BadRequest(c, err)
		return
	}
	job := model.JobRequest{
		CustomerID:     req.CustomerID,
		SiteID:         req.SiteID,
		ServiceID:      req.ServiceID,
		PreferredDate:  req.From,
		PreferredSlots: req.PreferredSlots,
		Flexibility:    req.Flexibility,
		Quantity:       req.Quantity,
	}
	if job.Flexibility == "" {
		job.Flexibility = model.FlexFlexibleWeek
	}
	slots, err := h.svc.GetViableSlots(c.Request.Context(), job, req.From, req.To, req.MaxSlots)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}
