// Package api assembles the HTTP surface of the service.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiallocation "github.com/kilianp07/fieldalloc/api/allocation"
	apiaudit "github.com/kilianp07/fieldalloc/api/audit"
	apipricing "github.com/kilianp07/fieldalloc/api/pricing"
	"github.com/kilianp07/fieldalloc/api/respond"
	coreaudit "github.com/kilianp07/fieldalloc/core/audit"
	"github.com/kilianp07/fieldalloc/core/logger"
	"github.com/kilianp07/fieldalloc/core/network"
	"github.com/kilianp07/fieldalloc/core/store"
)

// NetworkEffects scores a job location.
type NetworkEffects interface {
	NetworkEffect(ctx context.Context, postcode string) (network.Effect, error)
}

// Deps are the services served over HTTP. Nil optional services leave their
// routes unmounted.
type Deps struct {
	Allocator apiallocation.Service
	Pricing   apipricing.Quoter
	Rules     store.PricingStore
	Audit     coreaudit.Store
	Network   NetworkEffects
	Gatherer  prometheus.Gatherer
	// Token, when set, is required as "Bearer <token>" on /api routes.
	Token string
	Log   logger.Logger
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	respond.RegisterValidators()
	log := logger.OrNop(d.Log)

	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v := r.Group("/api", bearer(d.Token))
	if d.Allocator != nil {
		apiallocation.NewHandler(d.Allocator).Register(v)
	}
	if d.Pricing != nil {
		apipricing.NewHandler(d.Pricing, d.Rules).Register(v)
	}
	if d.Audit != nil {
		apiaudit.Register(v, d.Audit)
	}
	if d.Network != nil {
		v.GET("/areas/:postcode/network", networkEffect(d.Network))
	}
	return r
}

func networkEffect(n NetworkEffects) gin.HandlerFunc {
	return func(c *gin.Context) {
		var uri struct {
			Postcode string `uri:"postcode" binding:"required,postcode"`
		}
		if err := c.ShouldBindUri(&uri); err != nil {
			respond.BadRequest(c, err)
			return
		}
		eff, err := n.NetworkEffect(c.Request.Context(), uri.Postcode)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, eff)
	}
}

func bearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if len(c.Errors) > 0 {
			log.Errorf("request %s %s failed: %s", c.Request.Method, c.FullPath(), c.Errors.String())
			return
		}
		log.Debugw("request", map[string]any{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
	}
}
