package fulfillment

import (
	"context"
	"database/sql"

	"storefront-svc/inventory"
	"storefront-svc/models"
	"storefront-svc/store"
)

// Tx is the unit of work an order transition runs in. Nothing it changes is
// visible to other callers until the enclosing WithTx returns nil.
type Tx interface {
	// LockOrder loads the order and holds it against concurrent transitions.
	LockOrder(ctx context.Context, orderID string) (*models.Order, error)
	Snapshot(ctx context.Context, productIDs []string) (map[string]*models.Product, error)
	Reserve(ctx context.Context, productID string, quantity int, size string) error
	SetStatus(ctx context.Context, o *models.Order, to models.OrderStatus, actorID int64) error
}

type Repository interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	FindOrder(ctx context.Context, orderID string) (*models.Order, error)
	Snapshot(ctx context.Context, productIDs []string) (map[string]*models.Product, error)
}

type PostgresRepository struct {
	db     *sql.DB
	orders *store.OrderStore
	ledger *inventory.Ledger
}

func NewPostgresRepository(db *sql.DB, orders *store.OrderStore, ledger *inventory.Ledger) *PostgresRepository {
	return &PostgresRepository{db: db, orders: orders, ledger: ledger}
}

func (r *PostgresRepository) WithTx(ctx context.Context, fn func(Tx) error) error {
	return store.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx, orders: r.orders, ledger: r.ledger})
	})
}

func (r *PostgresRepository) FindOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return r.orders.FindByOrderID(ctx, orderID)
}

func (r *PostgresRepository) Snapshot(ctx context.Context, productIDs []string) (map[string]*models.Product, error) {
	return r.ledger.Snapshot(ctx, r.db, productIDs)
}

type pgTx struct {
	tx     *sql.Tx
	orders *store.OrderStore
	ledger *inventory.Ledger
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return t.orders.LockByOrderID(ctx, t.tx, orderID)
}

func (t *pgTx) Snapshot(ctx context.Context, productIDs []string) (map[string]*models.Product, error) {
	return t.ledger.Snapshot(ctx, t.tx, productIDs)
}

func (t *pgTx) Reserve(ctx context.Context, productID string, quantity int, size string) error {
	return t.ledger.Reserve(ctx, t.tx, productID, quantity, size)
}

func (t *pgTx) SetStatus(ctx context.Context, o *models.Order, to models.OrderStatus, actorID int64) error {
	return t.orders.UpdateStatus(ctx, t.tx, o, to, actorID)
}
