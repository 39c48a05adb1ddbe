package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"storefront-svc/inventory"
	"storefront-svc/models"
	"storefront-svc/store"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var orderRowColumns = []string{
	"id", "order_id", "customer_name", "customer_email", "customer_phone", "customer_address", "customer_city", "notes",
	"items", "total", "discount", "shipping_charge", "payment_method", "status", "created_at", "updated_at",
}

func mugOrderRows(status models.OrderStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderRowColumns).AddRow(1, "ORDER_1", "Karim", "karim@example.com", "01800000000", "7 Hill Street", "Chattogram", "",
		[]byte(`[{"product_id":"p-mug","title":"Mug","quantity":2,"price":350}]`),
		760.0, 0.0, 60.0, "cod", string(status), now, now)
}

func newPostgresService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	repo := NewPostgresRepository(db, store.NewOrderStore(db), inventory.NewLedger(store.NewProductStore(db), logger))
	return NewService(repo, inventory.NewLocker(), nil, nil, logger), mock
}

func expectSnapshot(mock sqlmock.Sqlmock, quantity int) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id::text = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "slug", "prices", "availability", "quantity", "size_requirement", "created_at", "updated_at"}).
			AddRow("p-mug", "Mug", "mug", []byte(`[]`), "InStock", quantity, "None", now, now))
	mock.ExpectQuery("SELECT product_id, name, quantity FROM product_sizes").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "quantity"}))
}

func TestPostgresAccept_CommitsReservationAndStatus(t *testing.T) {
	svc, mock := newPostgresService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).
		WithArgs("ORDER_1").
		WillReturnRows(mugOrderRows(models.OrderStatusPending))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1 FOR UPDATE")).
		WithArgs("ORDER_1").
		WillReturnRows(mugOrderRows(models.OrderStatusPending))
	expectSnapshot(mock, 5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT availability, size_requirement FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs("p-mug").
		WillReturnRows(sqlmock.NewRows([]string{"availability", "size_requirement"}).AddRow("InStock", "None"))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE products SET quantity = quantity - $1")).
		WithArgs(2, "p-mug").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET status = $1")).
		WithArgs(models.OrderStatusAccepted, "ORDER_1", models.OrderStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs("ORDER_1", models.OrderStatusPending, models.OrderStatusAccepted, int64(7)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	o, err := svc.Accept(context.Background(), moderator, "ORDER_1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if o.Status != models.OrderStatusAccepted {
		t.Errorf("Expected accepted, got %s", o.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPostgresAccept_LostRaceRollsBack(t *testing.T) {
	svc, mock := newPostgresService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).
		WillReturnRows(mugOrderRows(models.OrderStatusPending))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(mugOrderRows(models.OrderStatusPending))
	expectSnapshot(mock, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT availability, size_requirement FROM products")).
		WillReturnRows(sqlmock.NewRows([]string{"availability", "size_requirement"}).AddRow("InStock", "None"))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE products SET quantity = quantity - $1")).
		WithArgs(2, "p-mug").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := svc.Accept(context.Background(), moderator, "ORDER_1")
	var stockErr *models.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if !containsIssue(stockErr.Issues, "Mug") {
		t.Errorf("Expected issue naming Mug, got %v", stockErr.Issues)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPostgresAccept_TerminalOrderRollsBack(t *testing.T) {
	svc, mock := newPostgresService(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE order_id = $1")).
		WillReturnRows(mugOrderRows(models.OrderStatusAccepted))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(mugOrderRows(models.OrderStatusAccepted))
	mock.ExpectRollback()

	if _, err := svc.Accept(context.Background(), moderator, "ORDER_1"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("Expected invalid transition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
