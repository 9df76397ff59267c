package handler

import (
	"net/http"
	"strings"

	"stockledger/internal/dto"
	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body.
const IdempotencyKeyHeader = "Idempotency-Key"

type SalesHandler struct{ svc service.SaleService }

func NewSalesHandler(svc service.SaleService) *SalesHandler {
	return &SalesHandler{svc: svc}
}

// Record godoc
// @Summary Record a multi-line sale atomically
// @Description Either every line commits with one aggregate stock debit per product, or nothing does.
// @Tags sales
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replays the original result when repeated"
// @Param body body dto.RecordSaleRequest true "Sale"
// @Success 201 {object} dto.SaleResponse
// @Success 200 {object} dto.SaleResponse "replayed"
// @Failure 409 {object} apierror.StockError
// @Failure 422 {object} apierror.ValidationError
// @Failure 503 {object} apierror.APIError
// @Router /v1/sales [post]
func (h *SalesHandler) Record(c *gin.Context) {
	var req dto.RecordSaleRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Salesperson) == "" {
		if actor := middleware.ActorFrom(c); actor != nil {
			req.Salesperson = *actor
		}
	}
	if req.IdempotencyKey == nil {
		if key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)); key != "" {
			req.IdempotencyKey = &key
		}
	}
	resp, err := h.svc.RecordSale(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// List godoc
// @Summary List sale lines, newest first
// @Tags sales
// @Produce json
// @Param salesperson query string false "Salesperson"
// @Param product_id query string false "Product ID"
// @Param date query string false "YYYY-MM-DD"
// @Param page query int false "Page" default(1)
// @Param limit query int false "Page size" default(50)
// @Success 200 {object} dto.SaleListResponse
// @Router /v1/sales [get]
func (h *SalesHandler) List(c *gin.Context) {
	var filter dto.SaleFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListSales(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// EditLine godoc
// @Summary Correct one sale line
// @Description A quantity change moves stock by the difference (reason sale-correction).
// @Tags sales
// @Accept json
// @Produce json
// @Param id path string true "Sale line ID"
// @Param body body dto.EditSaleLineRequest true "Correction"
// @Success 200 {object} dto.SaleLineResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.StockError
// @Router /v1/sales/{id} [put]
func (h *SalesHandler) EditLine(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.EditSaleLineRequest
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.svc.EditSaleLine(c.Request.Context(), id, req, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
