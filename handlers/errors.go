package handlers

import (
	"context"
	"errors"
	"net/http"

	"storefront-svc/circuitbreaker"
	"storefront-svc/middleware"
	"storefront-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps domain errors to status codes. Anything it does not
// recognise is logged and reported as a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, err error, notFound string) {
	var validation *models.ValidationError
	var failed *models.ValidationFailedError
	var stock *models.InsufficientStockError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": validation.Details})
	case errors.As(err, &stock):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient stock", "issues": stock.Issues})
	case errors.As(err, &failed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Order validation failed", "issues": failed.Issues})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Order cannot be changed from its current status"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Resource already exists"})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request timed out"})
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		traceID := middleware.GetTraceID(c.Request.Context())
		logger.Error("Request failed",
			zap.String("trace_id", traceID),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// isClientError reports errors that say nothing about backend health and so
// must not trip a circuit breaker.
func isClientError(err error) bool {
	var validation *models.ValidationError
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrConflict) ||
		errors.As(err, &validation)
}
