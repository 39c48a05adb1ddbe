package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront-svc/models"

	"github.com/google/uuid"
)

const orderColumns = "id, order_id, customer_name, customer_email, customer_phone, customer_address, customer_city, notes, items, total, discount, shipping_charge, payment_method, status, created_at, updated_at"

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// NewOrderID returns a human-readable order id such as ORDER_3F2A9C1B7D4E.
func NewOrderID() string {
	return "ORDER_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var items []byte
	err := row.Scan(
		&o.ID, &o.OrderID,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &o.Customer.Address, &o.Customer.City, &o.Customer.Notes,
		&items, &o.Total, &o.Discount, &o.ShippingCharge, &o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Products); err != nil {
		return nil, fmt.Errorf("failed to decode items for order %s: %w", o.OrderID, err)
	}
	return &o, nil
}

// Create validates the order, prices its line items from the catalog, assigns
// its order id, initial status and total, and inserts it. Client-supplied
// titles and prices are discarded.
func (s *OrderStore) Create(ctx context.Context, o *models.Order) error {
	o.Customer.Email = strings.ToLower(strings.TrimSpace(o.Customer.Email))
	if err := o.Validate(); err != nil {
		return err
	}

	if err := s.priceItems(ctx, o); err != nil {
		return err
	}

	o.OrderID = NewOrderID()
	o.Status = o.PaymentMethod.InitialStatus()
	o.Total = o.ComputeTotal()

	items, err := json.Marshal(o.Products)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		"INSERT INTO orders (order_id, customer_name, customer_email, customer_phone, customer_address, customer_city, notes, items, total, discount, shipping_charge, payment_method, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id, created_at, updated_at",
		o.OrderID, o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Customer.Address, o.Customer.City, o.Customer.Notes,
		items, o.Total, o.Discount, o.ShippingCharge, o.PaymentMethod, o.Status,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// priceItems replaces each line item's title and price with the catalog's.
func (s *OrderStore) priceItems(ctx context.Context, o *models.Order) error {
	ids := make([]string, 0, len(o.Products))
	for _, item := range o.Products {
		ids = append(ids, item.ProductID)
	}
	catalog, err := (&ProductStore{db: s.db}).Load(ctx, s.db, ids)
	if err != nil {
		return err
	}

	details := map[string]string{}
	for i := range o.Products {
		p, ok := catalog[o.Products[i].ProductID]
		if !ok {
			details[fmt.Sprintf("products[%d].product_id", i)] = "Product not found"
			continue
		}
		o.Products[i].Title = p.Title
		o.Products[i].Price = p.UnitPrice()
	}
	if len(details) > 0 {
		return &models.ValidationError{Details: details}
	}
	return nil
}

func (s *OrderStore) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	return s.findOne(ctx, s.db, "SELECT "+orderColumns+" FROM orders WHERE order_id = $1", orderID)
}

// LockByOrderID loads the order and holds its row lock until q's transaction
// ends, serializing concurrent status changes of the same order.
func (s *OrderStore) LockByOrderID(ctx context.Context, q DBTX, orderID string) (*models.Order, error) {
	return s.findOne(ctx, q, "SELECT "+orderColumns+" FROM orders WHERE order_id = $1 FOR UPDATE", orderID)
}

func (s *OrderStore) findOne(ctx context.Context, q DBTX, query, orderID string) (*models.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	return o, nil
}

// List returns the orders matching filter, newest first.
func (s *OrderStore) List(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders"
	conds := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.OrderID != "" {
		conds = append(conds, "order_id = "+arg(filter.OrderID))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.Email != "" {
		conds = append(conds, "LOWER(customer_email) = "+arg(strings.ToLower(filter.Email)))
	}
	if filter.Date != nil {
		day := time.Date(filter.Date.Year(), filter.Date.Month(), filter.Date.Day(), 0, 0, 0, 0, filter.Date.Location())
		conds = append(conds, "created_at >= "+arg(day))
		conds = append(conds, "created_at < "+arg(day.AddDate(0, 0, 1)))
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "created_at <= "+arg(*filter.To))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := arg("%" + search + "%")
		conds = append(conds, "(order_id ILIKE "+p+" OR customer_name ILIKE "+p+" OR customer_email ILIKE "+p+" OR customer_phone ILIKE "+p+")")
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves o to the given status and appends a history row. The
// UPDATE is conditioned on the status o was loaded with.
func (s *OrderStore) UpdateStatus(ctx context.Context, q DBTX, o *models.Order, to models.OrderStatus, actorID int64) error {
	if !models.CanTransition(o.Status, to) {
		return fmt.Errorf("order %s cannot move from %s to %s: %w", o.OrderID, o.Status, to, models.ErrInvalidTransition)
	}

	var updatedAt time.Time
	err := q.QueryRowContext(ctx,
		"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE order_id = $2 AND status = $3 RETURNING updated_at",
		to, o.OrderID, o.Status,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s changed status concurrently: %w", o.OrderID, models.ErrInvalidTransition)
		}
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		"INSERT INTO order_status_history (order_id, from_status, to_status, actor_id) VALUES ($1, $2, $3, $4)",
		o.OrderID, o.Status, to, actorID,
	); err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}

	o.Status = to
	o.UpdatedAt = updatedAt
	return nil
}

func (s *OrderStore) History(ctx context.Context, orderID string) ([]models.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT order_id, from_status, to_status, actor_id, created_at FROM order_status_history WHERE order_id = $1 ORDER BY id",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order history: %w", err)
	}
	defer rows.Close()

	history := []models.StatusChange{}
	for rows.Next() {
		var c models.StatusChange
		if err := rows.Scan(&c.OrderID, &c.FromStatus, &c.ToStatus, &c.ActorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order history: %w", err)
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

// CountOpenByProduct counts non-terminal orders that contain the product.
func (s *OrderStore) CountOpenByProduct(ctx context.Context, productID string) (int, error) {
	ref, err := json.Marshal([]map[string]string{{"product_id": productID}})
	if err != nil {
		return 0, err
	}
	var count int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM orders WHERE status IN ($1, $2) AND items @> $3::jsonb",
		models.OrderStatusPending, models.OrderStatusPendingPayment, string(ref),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open orders: %w", err)
	}
	return count, nil
}
