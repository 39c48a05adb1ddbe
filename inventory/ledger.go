// Package inventory owns product stock: availability reads and the
// conditional decrements performed when an order is accepted.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-svc/middleware"
	"storefront-svc/models"
	"storefront-svc/store"

	"go.uber.org/zap"
)

type Ledger struct {
	products *store.ProductStore
	logger   *zap.Logger
}

func NewLedger(products *store.ProductStore, logger *zap.Logger) *Ledger {
	return &Ledger{products: products, logger: logger}
}

func (l *Ledger) GetAvailability(ctx context.Context, productID string) (models.AvailabilityView, error) {
	p, err := l.products.Get(ctx, productID)
	if err != nil {
		return models.AvailabilityView{}, err
	}
	return p.AvailabilityView(), nil
}

// Snapshot reads the current state of the given products through q.
func (l *Ledger) Snapshot(ctx context.Context, q store.DBTX, productIDs []string) (map[string]*models.Product, error) {
	return l.products.Load(ctx, q, productIDs)
}

// Reserve decrements stock for one line item inside the caller's transaction.
// Every decrement is conditional on enough stock remaining, so two
// transactions can never both take the last unit. The product row is locked
// for the remainder of the transaction.
func (l *Ledger) Reserve(ctx context.Context, tx store.DBTX, productID string, quantity int, size string) error {
	err := l.reserve(ctx, tx, productID, quantity, size)
	switch {
	case err == nil:
		middleware.RecordReservation("reserved")
	case errors.Is(err, models.ErrInsufficientStock):
		middleware.RecordReservation("insufficient")
	default:
		middleware.RecordReservation("error")
	}
	return err
}

func (l *Ledger) reserve(ctx context.Context, tx store.DBTX, productID string, quantity int, size string) error {
	if quantity <= 0 {
		return fmt.Errorf("invalid quantity %d for product %s: %w", quantity, productID, models.ErrInsufficientStock)
	}

	var availability models.Availability
	var requirement models.SizeRequirement
	err := tx.QueryRowContext(ctx,
		"SELECT availability, size_requirement FROM products WHERE id = $1 FOR UPDATE",
		productID,
	).Scan(&availability, &requirement)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %s: %w", productID, models.ErrNotFound)
		}
		return fmt.Errorf("failed to lock product %s: %w", productID, err)
	}

	if availability != models.AvailabilityInStock {
		return fmt.Errorf("product %s is %s: %w", productID, availability, models.ErrInsufficientStock)
	}

	sized := requirement == models.SizeRequirementMandatory
	if sized {
		if size == "" {
			return fmt.Errorf("product %s requires a size: %w", productID, models.ErrInsufficientStock)
		}
		result, err := tx.ExecContext(ctx,
			"UPDATE product_sizes SET quantity = quantity - $1 WHERE product_id = $2 AND name = $3 AND quantity >= $1",
			quantity, productID, size,
		)
		if err != nil {
			return fmt.Errorf("failed to reserve size %s of product %s: %w", size, productID, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("product %s size %s: %w", productID, size, models.ErrInsufficientStock)
		}
	}

	var remaining int
	err = tx.QueryRowContext(ctx,
		"UPDATE products SET quantity = quantity - $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND quantity >= $1 RETURNING quantity",
		quantity, productID,
	).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %s: %w", productID, models.ErrInsufficientStock)
		}
		return fmt.Errorf("failed to reserve product %s: %w", productID, err)
	}

	if sized {
		var sum int
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(quantity), 0) FROM product_sizes WHERE product_id = $1",
			productID,
		).Scan(&sum); err != nil {
			return fmt.Errorf("failed to verify sizes of product %s: %w", productID, err)
		}
		if sum != remaining {
			l.logger.Error("Size quantities out of sync with total",
				zap.String("product_id", productID),
				zap.Int("sizes_sum", sum),
				zap.Int("quantity", remaining),
			)
			return fmt.Errorf("product %s sizes sum %d does not match quantity %d", productID, sum, remaining)
		}
	}

	return nil
}
