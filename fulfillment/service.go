package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"storefront-svc/auth"
	"storefront-svc/inventory"
	"storefront-svc/middleware"
	"storefront-svc/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type EventPublisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, ids ...string)
}

// BulkResult reports the outcome of one order in a bulk action.
type BulkResult struct {
	OrderID string             `json:"orderId"`
	Success bool               `json:"success"`
	Status  models.OrderStatus `json:"status,omitempty"`
	Error   string             `json:"error,omitempty"`
	Issues  []string           `json:"issues,omitempty"`
}

type Service struct {
	repo   Repository
	locker *inventory.Locker
	events EventPublisher
	cache  CacheInvalidator
	logger *zap.Logger
}

// NewService wires the transition service. events and cache may be nil.
func NewService(repo Repository, locker *inventory.Locker, events EventPublisher, cache CacheInvalidator, logger *zap.Logger) *Service {
	if locker == nil {
		locker = inventory.NewLocker()
	}
	return &Service{repo: repo, locker: locker, events: events, cache: cache, logger: logger}
}

func orderLockKey(orderID string) string { return "order:" + orderID }

func productLockKey(productID string) string { return "product:" + productID }

func productIDs(o *models.Order) []string {
	seen := make(map[string]bool, len(o.Products))
	ids := make([]string, 0, len(o.Products))
	for _, item := range o.Products {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// Accept validates an order against current stock, reserves every line item
// and marks the order accepted, all in one transaction. If any step fails
// nothing is reserved and the order keeps its status.
func (s *Service) Accept(ctx context.Context, caller auth.Caller, orderID string) (*models.Order, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "AcceptOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int64("caller.id", caller.ID))

	o, err := s.accept(ctx, caller, orderID)
	s.record(models.OrderActionAccept, err)
	if err != nil {
		span.RecordError(err)
		s.logFailure("accept", orderID, caller, err)
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, productIDs(o)...)
	}
	s.publish(ctx, o, "order_accepted", caller)
	s.logger.Info("Order accepted", zap.String("order_id", orderID), zap.Int64("actor_id", caller.ID))
	return o, nil
}

func (s *Service) accept(ctx context.Context, caller auth.Caller, orderID string) (*models.Order, error) {
	if err := auth.RequireStaff(caller); err != nil {
		return nil, err
	}

	// Line items never change after checkout, so the product set read here
	// is the one the transaction will reserve.
	current, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	keys := []string{orderLockKey(orderID)}
	for _, id := range productIDs(current) {
		keys = append(keys, productLockKey(id))
	}
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var accepted *models.Order
	err = s.repo.WithTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !models.CanTransition(o.Status, models.OrderStatusAccepted) {
			return fmt.Errorf("order %s is %s: %w", orderID, o.Status, models.ErrInvalidTransition)
		}

		snapshot, err := tx.Snapshot(ctx, productIDs(o))
		if err != nil {
			return err
		}
		res := Validate(models.ItemRefs(o.Products), snapshot)
		if !res.IsValid {
			if res.StockShortage {
				return &models.InsufficientStockError{Issues: res.Issues}
			}
			return &models.ValidationFailedError{Issues: res.Issues}
		}

		for _, item := range reserveOrder(o.Products) {
			if err := tx.Reserve(ctx, item.ProductID, item.Quantity, item.Size); err != nil {
				return reservationError(item, snapshot[item.ProductID], err)
			}
		}

		if err := tx.SetStatus(ctx, o, models.OrderStatusAccepted, caller.ID); err != nil {
			return err
		}
		accepted = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// reserveOrder sorts line items by product id and size so concurrent
// reservations take product row locks in the same order.
func reserveOrder(items []models.LineItem) []models.LineItem {
	sorted := append([]models.LineItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		return sorted[i].Size < sorted[j].Size
	})
	return sorted
}

func reservationError(item models.LineItem, p *models.Product, err error) error {
	title := item.Title
	if p != nil {
		title = p.Title
	}
	if title == "" {
		title = item.ProductID
	}
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		issue := fmt.Sprintf("%s: insufficient stock for quantity %d", title, item.Quantity)
		if item.Size != "" {
			issue = fmt.Sprintf("%s (size %s): insufficient stock for quantity %d", title, item.Size, item.Quantity)
		}
		return &models.InsufficientStockError{Issues: []string{issue}}
	case errors.Is(err, models.ErrNotFound):
		return &models.ValidationFailedError{Issues: []string{fmt.Sprintf("Product %s not found", item.ProductID)}}
	}
	return err
}

// Reject marks an order rejected. Stock is not touched.
func (s *Service) Reject(ctx context.Context, caller auth.Caller, orderID string) (*models.Order, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "RejectOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int64("caller.id", caller.ID))

	o, err := s.reject(ctx, caller, orderID)
	s.record(models.OrderActionReject, err)
	if err != nil {
		span.RecordError(err)
		s.logFailure("reject", orderID, caller, err)
		return nil, err
	}

	s.publish(ctx, o, "order_rejected", caller)
	s.logger.Info("Order rejected", zap.String("order_id", orderID), zap.Int64("actor_id", caller.ID))
	return o, nil
}

func (s *Service) reject(ctx context.Context, caller auth.Caller, orderID string) (*models.Order, error) {
	if err := auth.RequireStaff(caller); err != nil {
		return nil, err
	}
	return s.transition(ctx, caller, orderID, models.OrderStatusRejected)
}

func (s *Service) transition(ctx context.Context, caller auth.Caller, orderID string, to models.OrderStatus) (*models.Order, error) {
	unlock, err := s.locker.Lock(ctx, orderLockKey(orderID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var updated *models.Order
	err = s.repo.WithTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !models.CanTransition(o.Status, to) {
			return fmt.Errorf("order %s is %s: %w", orderID, o.Status, models.ErrInvalidTransition)
		}
		if err := tx.SetStatus(ctx, o, to, caller.ID); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) BulkAccept(ctx context.Context, caller auth.Caller, orderIDs []string) ([]BulkResult, error) {
	return s.bulk(ctx, caller, orderIDs, models.OrderActionAccept, s.Accept)
}

func (s *Service) BulkReject(ctx context.Context, caller auth.Caller, orderIDs []string) ([]BulkResult, error) {
	return s.bulk(ctx, caller, orderIDs, models.OrderActionReject, s.Reject)
}

// bulk applies op to each order in turn. A failed order is reported in its
// result and never stops the rest of the batch.
func (s *Service) bulk(ctx context.Context, caller auth.Caller, orderIDs []string, action models.OrderAction,
	op func(context.Context, auth.Caller, string) (*models.Order, error)) ([]BulkResult, error) {
	if err := auth.RequireStaff(caller); err != nil {
		return nil, err
	}

	results := make([]BulkResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			results = append(results, BulkResult{OrderID: id, Error: "Request cancelled"})
			continue
		}
		o, err := op(ctx, caller, id)
		if err != nil {
			results = append(results, BulkResult{OrderID: id, Error: PublicMessage(action, err), Issues: models.Issues(err)})
			continue
		}
		results = append(results, BulkResult{OrderID: id, Success: true, Status: o.Status})
	}
	return results, nil
}

// PublicMessage is the client-facing description of a transition failure.
// Unrecognised errors collapse to a generic message.
func PublicMessage(action models.OrderAction, err error) string {
	var stock *models.InsufficientStockError
	var invalid *models.ValidationFailedError
	switch {
	case errors.As(err, &stock):
		return "Insufficient stock"
	case errors.As(err, &invalid):
		return "Order validation failed"
	case errors.Is(err, models.ErrNotFound):
		return "Order not found"
	case errors.Is(err, models.ErrInvalidTransition):
		return fmt.Sprintf("Order cannot be %sed in its current status", action)
	case errors.Is(err, models.ErrForbidden):
		return "Insufficient permissions"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Request timed out"
	}
	return "Internal server error"
}

// ValidateOrder runs the validator against live stock without changing
// anything. When items is empty the order's own line items are checked.
func (s *Service) ValidateOrder(ctx context.Context, caller auth.Caller, orderID string, items []models.ItemRef) (Result, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "ValidateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if err := auth.RequireStaff(caller); err != nil {
		return Result{}, err
	}
	o, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		items = models.ItemRefs(o.Products)
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	snapshot, err := s.repo.Snapshot(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	return Validate(items, snapshot), nil
}

// ConfirmPayment moves a pending_payment order to pending once its online
// payment succeeded. Redelivered confirmations for an already pending order
// are ignored.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "ConfirmPayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	o, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if o.Status == models.OrderStatusPending {
		return o, nil
	}

	o, err = s.transition(ctx, auth.System, orderID, models.OrderStatusPending)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.publish(ctx, o, "order_payment_confirmed", auth.System)
	s.logger.Info("Order payment confirmed", zap.String("order_id", orderID))
	return o, nil
}

// FailPayment rejects a pending_payment order whose payment failed.
// Redelivered failures for an already rejected order are ignored.
func (s *Service) FailPayment(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "FailPayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	o, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if o.Status == models.OrderStatusRejected {
		return o, nil
	}
	if o.Status != models.OrderStatusPendingPayment {
		return nil, fmt.Errorf("order %s is %s, not awaiting payment: %w", orderID, o.Status, models.ErrInvalidTransition)
	}

	o, err = s.transition(ctx, auth.System, orderID, models.OrderStatusRejected)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.publish(ctx, o, "order_rejected", auth.System)
	s.logger.Info("Order rejected after failed payment", zap.String("order_id", orderID))
	return o, nil
}

func (s *Service) record(action models.OrderAction, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInsufficientStock):
		result = "insufficient_stock"
	case errors.Is(err, models.ErrInvalidTransition):
		result = "invalid_transition"
	case errors.Is(err, models.ErrNotFound):
		result = "not_found"
	case errors.Is(err, models.ErrForbidden):
		result = "forbidden"
	default:
		var invalid *models.ValidationFailedError
		if errors.As(err, &invalid) {
			result = "validation_failed"
		} else {
			result = "error"
		}
	}
	middleware.RecordOrderTransition(string(action), result)
}

func (s *Service) logFailure(action, orderID string, caller auth.Caller, err error) {
	fields := []zap.Field{
		zap.String("order_id", orderID),
		zap.Int64("actor_id", caller.ID),
		zap.Error(err),
	}
	if issues := models.Issues(err); issues != nil {
		s.logger.Info("Order "+action+" refused", append(fields, zap.Strings("issues", issues))...)
		return
	}
	s.logger.Warn("Order "+action+" failed", fields...)
}

// publish emits an order event after commit. The status change stands even
// if the event cannot be delivered.
func (s *Service) publish(ctx context.Context, o *models.Order, eventType string, caller auth.Caller) {
	if s.events == nil {
		return
	}
	event := models.OrderEvent{
		OrderID:   o.OrderID,
		Status:    o.Status,
		Email:     o.Customer.Email,
		Total:     o.Total,
		Method:    o.PaymentMethod,
		ActorID:   caller.ID,
		EventType: eventType,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("order_id", o.OrderID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
