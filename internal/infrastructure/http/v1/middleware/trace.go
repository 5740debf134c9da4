package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "crm/internal/core/context"
	"crm/pkg/logger"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace middleware attaches request and trace ids to the request context and
// echoes them in response headers. The process logger rides along so that
// logger.Info(ctx, ...) works everywhere downstream.
func Trace(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tc := appctx.NewTraceContext(ctx, c.GetHeader(HeaderRequestID), c.GetHeader(HeaderTraceID))

		ctx = appctx.WithTrace(ctx, tc)
		if log != nil {
			ctx = logger.WithLogger(ctx, log)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Set("trace_id", tc.TraceID)
		c.Set("request_id", tc.RequestID)

		c.Header(HeaderRequestID, tc.RequestID)
		c.Header(HeaderTraceID, tc.TraceID)

		c.Next()
	}
}
