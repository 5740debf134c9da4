// Package middleware holds the gin middleware of the v1 API.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"crm/internal/core/apperror"
	"crm/pkg/logger"
)

// Recovery answers a panic further down the chain with a 500 body. It is
// mounted first, so ErrorHandler never sees the panic and the response is
// written here. The stack only goes to the log.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.Error(c.Request.Context(), "panic recovered",
				"route", c.FullPath(),
				"error", apperror.NewInternal(fmt.Errorf("panic: %v", rec)),
				"stack", string(debug.Stack()),
			)
			releaseIdempotency(c)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{
				Code:    apperror.CodeInternal,
				Message: "Internal server error",
				Details: map[string]any{"request_id": c.GetString("request_id")},
			})
		}()
		c.Next()
	}
}
