package handlers

import (
	"github.com/gin-gonic/gin"

	"crm/internal/domain/workflow"
	"crm/internal/infrastructure/http/v1/dto"
)

// InventoryHandler exposes the product catalogue and the stock ledger.
type InventoryHandler struct {
	*BaseHandler
	service *workflow.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service *workflow.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the product endpoints on rg.
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/below-minimum", h.BelowMinimum)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/movements", h.Movements)
	rg.POST("/:id/movements", h.RecordMovement)
	rg.GET("/:id/replay", h.Replay)
}

// Create adds a product.
// POST /api/v1/products
func (h *InventoryHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.service.CreateProduct(c.Request.Context(), req.ToProduct())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p)
}

// List searches the catalogue.
// GET /api/v1/products
func (h *InventoryHandler) List(c *gin.Context) {
	var req dto.ProductListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	products, err := h.service.Products(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(products, req.PaginationRequest))
}

// Get returns one product.
func (h *InventoryHandler) Get(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.Product(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// BelowMinimum lists active products whose stock fell under the minimum.
func (h *InventoryHandler) BelowMinimum(c *gin.Context) {
	products, err := h.service.BelowMinimum(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(products, dto.PaginationRequest{}))
}

// Movements pages through the ledger of a product.
func (h *InventoryHandler) Movements(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.MovementListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, field, err := req.ToFilter()
	if err != nil {
		h.InvalidField(c, field, err)
		return
	}
	movements, err := h.service.ProductMovements(c.Request.Context(), productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(movements, req.PaginationRequest))
}

// RecordMovement applies a manual receipt or write-off.
func (h *InventoryHandler) RecordMovement(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	m, err := h.service.RecordMovement(c.Request.Context(), req.ToRequest(productID))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// Replay recomputes the stock of a product from its ledger.
func (h *InventoryHandler) Replay(c *gin.Context) {
	productID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.VerifyReplay(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ReplayResponse{ReplayResult: res, Consistent: res.Consistent()})
}
