package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"crm/internal/core/security"
	"crm/internal/infrastructure/http/v1/dto"
	"crm/internal/infrastructure/storage/postgres"
)

// AuditReader returns stored audit rows of one entity.
type AuditReader interface {
	EntityHistory(ctx context.Context, entityType, entityID string, limit int) ([]postgres.AuditRow, error)
}

// AuditHandler serves the audit trail to administrators.
type AuditHandler struct {
	*BaseHandler
	reader AuditReader
	policy *security.Policy
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, reader AuditReader, policy *security.Policy) *AuditHandler {
	return &AuditHandler{BaseHandler: base, reader: reader, policy: policy}
}

// History returns the newest audit rows of an entity.
// GET /api/v1/audit/:entityType/:entityId?limit=100
func (h *AuditHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.policy.Authorize(ctx, security.OpViewAudit); err != nil {
		h.Error(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := h.reader.EntityHistory(ctx, c.Param("entityType"), c.Param("entityId"), limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows, dto.PaginationRequest{Limit: limit}))
}
