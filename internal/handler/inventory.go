package handler

import (
	"net/http"

	"stockledger/internal/service"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct{ svc service.ProductService }

func NewInventoryHandler(svc service.ProductService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// Alerts godoc
// @Summary Active products at or below their minimum stock
// @Tags inventory
// @Produce json
// @Success 200 {array} dto.StockAlertResponse
// @Router /v1/inventory/alerts [get]
func (h *InventoryHandler) Alerts(c *gin.Context) {
	resp, err := h.svc.Alerts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Summary godoc
// @Summary Inventory totals for the active catalog
// @Tags inventory
// @Produce json
// @Success 200 {object} dto.InventorySummaryResponse
// @Router /v1/inventory/summary [get]
func (h *InventoryHandler) Summary(c *gin.Context) {
	resp, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
