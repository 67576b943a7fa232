// Package audit exposes recorded allocation decisions over HTTP.
package audit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/fieldalloc/api/respond"
	coreaudit "github.com/kilianp07/fieldalloc/core/audit"
	"github.com/kilianp07/fieldalloc/pkg/export"
)

const maxLimit = 1000

// Register mounts GET /audit/decisions on rg. format=csv downloads the
// records as CSV.
func Register(rg *gin.RouterGroup, store coreaudit.Store) {
	rg.GET("/audit/decisions", func(c *gin.Context) {
		var f struct {
			Start      time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
			End        time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
			BookingID  string    `form:"booking_id"`
			EngineerID string    `form:"engineer_id"`
			Kind       string    `form:"kind" binding:"omitempty,oneof=allocation shadow override no_candidate"`
			Limit      int       `form:"limit" binding:"gte=0"`
			Format     string    `form:"format" binding:"omitempty,oneof=json csv"`
		}
		if err := c.ShouldBindQuery(&f); err != nil {
			respond.BadRequest(c, err)
			return
		}
		if f.Limit == 0 || f.Limit > maxLimit {
			f.Limit = maxLimit
		}
		records, err := store.Query(c.Request.Context(), coreaudit.Query{
			Start:      f.Start,
			End:        f.End,
			BookingID:  f.BookingID,
			EngineerID: f.EngineerID,
			Kind:       coreaudit.Kind(f.Kind),
			Limit:      f.Limit,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}
		if f.Format == "csv" {
			c.Header("Content-Type", "text/csv")
			c.Header("Content-Disposition", `attachment; filename="decisions.csv"`)
			c.Status(http.StatusOK)
			if err := export.WriteCSV(c.Writer, records); err != nil {
				_ = c.Error(err)
			}
			return
		}
		if records == nil {
			records = []coreaudit.DecisionRecord{}
		}
		c.JSON(http.StatusOK, records)
	})
}
