package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"crm/internal/core/apperror"
	"crm/internal/core/id"
	"crm/internal/infrastructure/http/v1/middleware"
)

const contentTypeJSON = "application/json; charset=utf-8"

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// ParamID parses the named path parameter as an id.
func (h *BaseHandler) ParamID(c *gin.Context, name string) (id.ID, bool) {
	v, err := id.Parse(c.Param(name))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("field", name))
		return id.Nil(), false
	}
	return v, true
}

// InvalidField reports a malformed query parameter.
func (h *BaseHandler) InvalidField(c *gin.Context, field string, err error) {
	h.Error(c, apperror.NewValidation("invalid query parameters").
		WithDetail("field", field).
		WithDetail("error", err.Error()))
}

// Error registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	h.respond(c, http.StatusOK, data)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	h.respond(c, http.StatusCreated, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	// 204 must replay as 204 with empty body.
	middleware.CompleteIdempotency(c, http.StatusNoContent, "", nil)
	c.Status(http.StatusNoContent)
}

// respond marshals once so that the stored idempotent reply is byte-identical
// to what the client received.
func (h *BaseHandler) respond(c *gin.Context, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	middleware.CompleteIdempotency(c, status, contentTypeJSON, body)
	c.Data(status, contentTypeJSON, body)
}
