package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"crm/internal/core/apperror"
	"crm/pkg/logger"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
//
// Client errors are stored against the idempotency key so that a retry sees
// the same answer. Server errors and lost optimistic-lock races release the
// key so that a retry runs again.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		ctx := c.Request.Context()

		status := http.StatusInternalServerError
		body := ErrorBody{
			Code:    apperror.CodeInternal,
			Message: "Internal server error",
			Details: map[string]any{"request_id": c.GetString("request_id")},
		}

		if appErr, ok := apperror.AsAppError(err); ok && appErr.HTTPStatus < http.StatusInternalServerError {
			status = appErr.HTTPStatus
			body = ErrorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
			if appErr.Err != nil {
				logger.Warn(ctx, "request rejected", "code", appErr.Code, "cause", appErr.Err)
			}
		} else {
			logger.Error(ctx, "request failed", "error", err)
		}

		raw, mErr := json.Marshal(body)
		if mErr != nil {
			raw = []byte(`{"code":"INTERNAL_ERROR","message":"Internal server error"}`)
		}
		if status >= http.StatusInternalServerError || apperror.IsConcurrentModification(err) {
			releaseIdempotency(c)
		} else {
			CompleteIdempotency(c, status, "application/json", raw)
		}
		c.Data(status, "application/json", raw)
	}
}
