// Package respond holds the JSON error conventions and request validators
// shared by the HTTP handlers.
package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/kilianp07/fieldalloc/core/apperr"
	"github.com/kilianp07/fieldalloc/core/geo"
)

// Error writes err with the status matching its kind. Internal errors are
// logged on the context and returned without detail.
func Error(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && apperr.KindOf(err) == apperr.Internal {
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error", "kind": string(apperr.Internal)})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": string(apperr.KindOf(err))})
}

// BadRequest reports a request that failed binding or validation.
func BadRequest(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request",
			"kind":   string(apperr.ValidationFailure),
			"fields": fields,
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": string(apperr.ValidationFailure)})
}

// RegisterValidators adds the custom binding rules. It is safe to call
// more than once.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("postcode", validPostcode)
	}
}

var validPostcode validator.Func = func(fl validator.FieldLevel) bool {
	pc, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return geo.Valid(pc)
}
