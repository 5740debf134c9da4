package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"crm/internal/core/id"
	"crm/internal/domain/deal"
	"crm/internal/domain/workflow"
	"crm/internal/infrastructure/http/v1/dto"
)

// DealHandler exposes the deal workflow.
type DealHandler struct {
	*BaseHandler
	service *workflow.Service
}

// NewDealHandler creates a new deal handler.
func NewDealHandler(base *BaseHandler, service *workflow.Service) *DealHandler {
	return &DealHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the deal endpoints on rg.
func (h *DealHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/history", h.History)
	rg.GET("/:id/shipment", h.Shipment)
	rg.GET("/:id/payments", h.Payments)

	rg.POST("/:id/start", h.transition(h.service.StartWork))
	rg.POST("/:id/request-stock", h.RequestStock)
	rg.POST("/:id/warehouse-response", h.WarehouseResponse)
	rg.POST("/:id/quantities", h.SetQuantities)
	rg.POST("/:id/approve-finance", h.transition(h.service.ApproveFinance))
	rg.POST("/:id/reject-finance", h.withReason(h.service.RejectFinance))
	rg.POST("/:id/reject", h.withReason(h.service.Reject))
	rg.POST("/:id/reopen", h.transition(h.service.Reopen))
	rg.POST("/:id/approve-admin", h.transition(h.service.ApproveAdmin))
	rg.POST("/:id/hold", h.withReason(h.service.HoldShipment))
	rg.POST("/:id/release-hold", h.transition(h.service.ReleaseShipmentHold))
	rg.POST("/:id/ship", h.Ship)
	rg.POST("/:id/close", h.transition(h.service.CloseDeal))
	rg.POST("/:id/cancel", h.withReason(h.service.Cancel))
	rg.POST("/:id/archive", h.transition(h.service.Archive))
	rg.POST("/:id/reassign", h.Reassign)
	rg.POST("/:id/payments", h.RecordPayment)

	rg.POST("/:id/items", h.AddItem)
	rg.DELETE("/:id/items/:itemId", h.RemoveItem)
}

// Create opens a new deal.
// POST /api/v1/deals
func (h *DealHandler) Create(c *gin.Context) {
	var req dto.CreateDealRequest
	if !h.BindJSON(c, &req) {
		return
	}
	d, err := h.service.CreateDeal(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, d)
}

// List returns deals visible to the caller.
// GET /api/v1/deals
func (h *DealHandler) List(c *gin.Context) {
	var req dto.DealListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, field, err := req.ToFilter()
	if err != nil {
		h.InvalidField(c, field, err)
		return
	}
	deals, err := h.service.ListDeals(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(deals, req.PaginationRequest))
}

// Get returns one deal with its items.
// GET /api/v1/deals/:id
func (h *DealHandler) Get(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	d, err := h.service.GetDeal(c.Request.Context(), dealID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, d)
}

// History returns the status log of a deal.
func (h *DealHandler) History(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	changes, err := h.service.DealHistory(c.Request.Context(), dealID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(changes, dto.PaginationRequest{}))
}

// Shipment returns the shipment record of a deal.
func (h *DealHandler) Shipment(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	s, err := h.service.DealShipment(c.Request.Context(), dealID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, s)
}

// Payments returns the payments recorded against a deal.
func (h *DealHandler) Payments(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	payments, err := h.service.DealPayments(c.Request.Context(), dealID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(payments, dto.PaginationRequest{}))
}

// RequestStock sends a deal to the warehouse.
func (h *DealHandler) RequestStock(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.RequestStockRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.RequestStock(c.Request.Context(), dealID, req.Comment))
}

// WarehouseResponse confirms the requested items.
func (h *DealHandler) WarehouseResponse(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.WarehouseResponseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.SubmitWarehouseResponse(c.Request.Context(), dealID, req.ToInput()))
}

// SetQuantities finalizes quantities, prices and payment terms.
func (h *DealHandler) SetQuantities(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.SetQuantitiesRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.SetItemQuantities(c.Request.Context(), dealID, req.ToInput()))
}

// Ship records the shipment and moves the stock out.
func (h *DealHandler) Ship(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ShipmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.SubmitShipment(c.Request.Context(), dealID, req.ToInput()))
}

// Reassign hands the deal to another manager.
func (h *DealHandler) Reassign(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.ReassignRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.Reassign(c.Request.Context(), dealID, req.ManagerID))
}

// RecordPayment registers money received for the deal.
func (h *DealHandler) RecordPayment(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, d, err := h.service.RecordPayment(c.Request.Context(), dealID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.PaymentResponse{Payment: p, Deal: d})
}

// AddItem appends a line to a deal that is still in negotiation.
func (h *DealHandler) AddItem(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.NewItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.reply(c)(h.service.AddItem(c.Request.Context(), dealID, req.ToInput()))
}

// RemoveItem drops a line from a deal.
func (h *DealHandler) RemoveItem(c *gin.Context) {
	dealID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	itemID, ok := h.ParamID(c, "itemId")
	if !ok {
		return
	}
	h.reply(c)(h.service.RemoveItem(c.Request.Context(), dealID, itemID))
}

// transition adapts a body-less workflow step.
func (h *DealHandler) transition(step func(ctx context.Context, dealID id.ID) (*deal.Deal, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		dealID, ok := h.ParamID(c, "id")
		if !ok {
			return
		}
		h.reply(c)(step(c.Request.Context(), dealID))
	}
}

// withReason adapts a workflow step that requires a reason.
func (h *DealHandler) withReason(step func(ctx context.Context, dealID id.ID, reason string) (*deal.Deal, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		dealID, ok := h.ParamID(c, "id")
		if !ok {
			return
		}
		var req dto.ReasonRequest
		if !h.BindJSON(c, &req) {
			return
		}
		h.reply(c)(step(c.Request.Context(), dealID, req.Reason))
	}
}

func (h *DealHandler) reply(c *gin.Context) func(*deal.Deal, error) {
	return func(d *deal.Deal, err error) {
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, d)
	}
}
