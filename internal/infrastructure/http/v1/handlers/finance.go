package handlers

import (
	"github.com/gin-gonic/gin"

	"crm/internal/domain/workflow"
	"crm/internal/infrastructure/http/v1/dto"
)

// FinanceHandler exposes the finance queue, daily closings and debts.
type FinanceHandler struct {
	*BaseHandler
	service *workflow.Service
}

// NewFinanceHandler creates a new finance handler.
func NewFinanceHandler(base *BaseHandler, service *workflow.Service) *FinanceHandler {
	return &FinanceHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the finance endpoints on rg.
func (h *FinanceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/queue", h.Queue)
	rg.POST("/closings", h.CloseDay)
	rg.GET("/closings", h.Closings)
	rg.GET("/debts", h.Debts)
	rg.GET("/clients/:id/discipline", h.Discipline)
}

// Queue lists deals waiting for finance approval.
func (h *FinanceHandler) Queue(c *gin.Context) {
	deals, err := h.service.FinanceQueue(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(deals, dto.PaginationRequest{}))
}

// CloseDay settles the CLOSED deals of today.
// POST /api/v1/finance/closings
func (h *FinanceHandler) CloseDay(c *gin.Context) {
	closing, err := h.service.CloseDay(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	if closing == nil {
		h.NoContent(c)
		return
	}
	h.Created(c, closing)
}

// Closings lists daily closings in a date range.
func (h *FinanceHandler) Closings(c *gin.Context) {
	var req dto.ClosingListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	closings, err := h.service.Closings(c.Request.Context(), req.From, req.To)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(closings, dto.PaginationRequest{}))
}

// Debts lists clients with outstanding balances, largest first.
func (h *FinanceHandler) Debts(c *gin.Context) {
	debts, err := h.service.ClientDebts(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(debts, dto.PaginationRequest{}))
}

// Discipline rates how a client pays.
func (h *FinanceHandler) Discipline(c *gin.Context) {
	clientID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	d, err := h.service.ClientDiscipline(c.Request.Context(), clientID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, d)
}
