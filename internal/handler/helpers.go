package handler

import (
	"errors"
	"net/http"

	"stockledger/internal/apierror"
	"stockledger/internal/dto"
	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// bindJSON binds the body without running validation; used where the service
// validates the whole request and reports every bad field at once.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	return true
}

// bindAndValidate binds the JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if either step fails; the
// caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if !bindJSON(c, req) {
		return false
	}
	if fields := dto.Validate(req); fields != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// bindQuery binds and validates query-string filters.
func bindQuery(c *gin.Context, filter interface{}) bool {
	if err := c.ShouldBindQuery(filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid query: "+err.Error()))
		return false
	}
	if fields := dto.Validate(filter); fields != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps ledger errors onto HTTP. Anything else is attached to
// the context for middleware.ErrorHandler, which logs it and answers 500.
func respondError(c *gin.Context, err error) {
	var le *service.LedgerError
	if !errors.As(err, &le) {
		_ = c.Error(err)
		return
	}
	switch le.Kind {
	case service.KindValidationFailed:
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(le.Fields))
	case service.KindNotFound:
		c.JSON(http.StatusNotFound, apierror.New(le.Detail))
	case service.KindInsufficientStock:
		c.JSON(http.StatusConflict, apierror.NewStock(le.Detail, toAPIShortfalls(le.Shortfalls)))
	case service.KindConflictAborted:
		log.Warn().Err(le).Str("request_id", c.GetString(middleware.RequestIDKey)).Msg("ledger conflict, request aborted")
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, apierror.New("the ledger is busy, try again"))
	case service.KindInvalidState:
		log.Error().Err(le).Str("request_id", c.GetString(middleware.RequestIDKey)).Msg("ledger integrity problem")
		c.JSON(http.StatusInternalServerError, apierror.New(le.Detail))
	default:
		_ = c.Error(err)
	}
}

func toAPIShortfalls(in []service.Shortfall) []apierror.Shortfall {
	out := make([]apierror.Shortfall, 0, len(in))
	for _, s := range in {
		out = append(out, apierror.Shortfall{
			ProductID:   s.ProductID.String(),
			ProductName: s.ProductName,
			Requested:   s.Requested,
			Available:   s.Available,
			Shortfall:   s.Missing,
		})
	}
	return out
}
