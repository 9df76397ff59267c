package handler

import (
	"net/http"

	"stockledger/internal/dto"
	"stockledger/internal/infra"
	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/gin-gonic/gin"
)

type ProductsHandler struct {
	products service.ProductService
	stock    service.StockService
	cache    *infra.JSONCache
}

// NewProductsHandler wires the product endpoints. cache may be nil.
func NewProductsHandler(products service.ProductService, stock service.StockService, cache *infra.JSONCache) *ProductsHandler {
	return &ProductsHandler{products: products, stock: stock, cache: cache}
}

// Create godoc
// @Summary Create a product with its opening stock
// @Tags products
// @Accept json
// @Produce json
// @Param body body dto.CreateProductRequest true "Product"
// @Success 201 {object} dto.ProductResponse
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/products [post]
func (h *ProductsHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.products.Create(c.Request.Context(), req, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary List products with derived metrics
// @Tags products
// @Produce json
// @Param status query string false "active (default), archived, inactive or all"
// @Param type query string false "Product type"
// @Param low_stock query bool false "Only products at or below min stock"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(50)
// @Success 200 {object} dto.ProductListResponse
// @Router /v1/products [get]
func (h *ProductsHandler) List(c *gin.Context) {
	var filter dto.ProductFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.products.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary Get one product
// @Tags products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} dto.ProductResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/products/{id} [get]
func (h *ProductsHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Remove godoc
// @Summary Remove a product
// @Description Archives a product that has sales on record, deletes it otherwise.
// @Tags products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} dto.RemoveProductResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/products/{id} [delete]
func (h *ProductsHandler) Remove(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.products.Remove(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AdjustStock godoc
// @Summary Set or move a product's stock
// @Description Send exactly one of target (absolute) or delta (signed).
// @Tags stock
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param body body dto.AdjustStockRequest true "Adjustment"
// @Success 200 {object} dto.StockMutationResponse
// @Failure 409 {object} apierror.StockError
// @Failure 422 {object} apierror.ValidationError
// @Failure 503 {object} apierror.APIError
// @Router /v1/products/{id}/stock [patch]
func (h *ProductsHandler) AdjustStock(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.AdjustStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	change := service.StockChange{Target: req.Target, Delta: req.Delta}
	resp, err := h.stock.ApplyStockDelta(c.Request.Context(), id, change, req.Reason, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// @Summary Stock history of a product, most recent first
// @Tags stock
// @Produce json
// @Param id path string true "Product ID"
// @Param limit query int false "Max entries (capped at 500)" default(100)
// @Success 200 {object} dto.StockHistoryResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/products/{id}/history [get]
func (h *ProductsHandler) History(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var filter dto.HistoryFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.stock.GetStockHistory(c.Request.Context(), id, filter.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Metrics godoc
// @Summary Derived stock metrics of a product
// @Description Served from Redis when cached; entries are evicted on every stock change.
// @Tags stock
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} dto.MetricsResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/products/{id}/metrics [get]
func (h *ProductsHandler) Metrics(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key := infra.MetricsKey(id.String())

	var cached dto.MetricsResponse
	if h.cache.Get(ctx, key, &cached) {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, cached)
		return
	}

	resp, err := h.products.Metrics(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.cache.Set(ctx, key, resp)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, resp)
}
