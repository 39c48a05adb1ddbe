package handlers

import (
	"fmt"
	"net/http"
	"time"

	"storefront-svc/export"
	"storefront-svc/fulfillment"
	"storefront-svc/middleware"
	"storefront-svc/models"
	"storefront-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders  *store.OrderStore
	service *fulfillment.Service
	events  fulfillment.EventPublisher
	logger  *zap.Logger
}

// NewOrderHandler builds the order endpoints. events may be nil.
func NewOrderHandler(orders *store.OrderStore, service *fulfillment.Service, events fulfillment.EventPublisher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:  orders,
		service: service,
		events:  events,
		logger:  logger,
	}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order := &models.Order{
		Customer:       req.Customer,
		Products:       req.Products,
		Discount:       req.Discount,
		ShippingCharge: req.ShippingCharge,
		PaymentMethod:  req.PaymentMethod,
	}
	if err := h.orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err, "Order not found")
		return
	}

	span.SetAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("order.status", string(order.Status)),
		attribute.Float64("order.total", order.Total),
	)

	traceID := middleware.GetTraceID(ctx)
	if h.events != nil {
		event := models.OrderEvent{
			OrderID:   order.OrderID,
			Status:    order.Status,
			Email:     order.Customer.Email,
			Total:     order.Total,
			Method:    order.PaymentMethod,
			EventType: "order_created",
		}
		if err := h.events.Publish(ctx, event); err != nil {
			h.logger.Error("Failed to publish order event", zap.String("trace_id", traceID), zap.Error(err))
		}
	}

	h.logger.Info("Order created",
		zap.String("trace_id", traceID),
		zap.String("order_id", order.OrderID),
		zap.String("status", string(order.Status)),
	)
	c.JSON(http.StatusCreated, order)
}

// parseOrderFilter reads orderId, status, email, date, from, to and search.
// Dates are YYYY-MM-DD; from/to also accept RFC 3339 timestamps.
func parseOrderFilter(c *gin.Context) (models.OrderFilter, error) {
	filter := models.OrderFilter{
		OrderID: c.Query("orderId"),
		Email:   c.Query("email"),
		Search:  c.Query("search"),
	}
	details := map[string]string{}

	if s := c.Query("status"); s != "" {
		filter.Status = models.OrderStatus(s)
		if !filter.Status.Valid() {
			details["status"] = "Status must be one of pending_payment, pending, accepted, rejected"
		}
	}
	if d := c.Query("date"); d != "" {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			details["date"] = "Date must be YYYY-MM-DD"
		} else {
			filter.Date = &t
		}
	}
	for _, key := range []string{"from", "to"} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			details[key] = "Must be YYYY-MM-DD or an RFC 3339 timestamp"
			continue
		}
		if key == "from" {
			filter.From = &t
		} else {
			if len(v) == len(time.DateOnly) {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			filter.To = &t
		}
	}

	if len(details) > 0 {
		return filter, &models.ValidationError{Details: details}
	}
	return filter, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func (h *OrderHandler) GetOrders(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "GetOrders")
	defer span.End()

	filter, err := parseOrderFilter(c)
	if err != nil {
		respondError(c, h.logger, err, "Order not found")
		return
	}

	orders, err := h.orders.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err, "Order not found")
		return
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "GetOrder")
	defer span.End()

	orderID := c.Param("orderId")
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := h.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err, "Order not found")
		return
	}
	history, err := h.orders.History(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err, "Order not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "history": history})
}

func (h *OrderHandler) ExportOrders(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "ExportOrders")
	defer span.End()

	filter, err := parseOrderFilter(c)
	if err != nil {
		respondError(c, h.logger, err, "Order not found")
		return
	}

	orders, err := h.orders.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err, "Order not found")
		return
	}

	filename := fmt.Sprintf("orders-%s.csv", time.Now().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)
	if err := export.WriteOrdersCSV(c.Writer, orders); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to write order export", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
	}
}

func (h *OrderHandler) ValidateProducts(c *gin.Context) {
	var req models.ValidateProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	caller, _ := middleware.GetCaller(c)

	result, err := h.service.ValidateOrder(c.Request.Context(), caller, req.OrderID, req.Products)
	if err != nil {
		respondError(c, h.logger, err, "Order not found")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *OrderHandler) OrderAction(c *gin.Context) {
	var req models.OrderActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	caller, _ := middleware.GetCaller(c)

	var (
		order *models.Order
		err   error
	)
	switch req.Action {
	case models.OrderActionAccept:
		order, err = h.service.Accept(c.Request.Context(), caller, req.OrderID)
	case models.OrderActionReject:
		order, err = h.service.Reject(c.Request.Context(), caller, req.OrderID)
	}
	if err != nil {
		respondError(c, h.logger, err, "Order not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Order %sed successfully", req.Action),
		"order":   order,
	})
}

func (h *OrderHandler) BulkAction(c *gin.Context) {
	var req models.BulkOrderActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	caller, _ := middleware.GetCaller(c)

	var (
		results []fulfillment.BulkResult
		err     error
	)
	switch req.Action {
	case models.OrderActionAccept:
		results, err = h.service.BulkAccept(c.Request.Context(), caller, req.OrderIDs)
	case models.OrderActionReject:
		results, err = h.service.BulkReject(c.Request.Context(), caller, req.OrderIDs)
	}
	if err != nil {
		respondError(c, h.logger, err, "Order not found")
		return
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}
