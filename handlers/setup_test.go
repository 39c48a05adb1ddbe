package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-svc/auth"
	"storefront-svc/cache"
	"storefront-svc/fulfillment"
	"storefront-svc/inventory"
	"storefront-svc/models"
	"storefront-svc/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	productRowColumns = []string{"id", "title", "slug", "prices", "availability", "quantity", "size_requirement", "created_at", "updated_at"}
	sizeRowColumns    = []string{"product_id", "name", "quantity"}
	userRowColumns    = []string{"id", "name", "email", "password_hash", "role", "is_active", "created_at"}
	orderRowColumns   = []string{
		"id", "order_id", "customer_name", "customer_email", "customer_phone", "customer_address", "customer_city", "notes",
		"items", "total", "discount", "shipping_charge", "payment_method", "status", "created_at", "updated_at",
	}
)

type testServer struct {
	router *gin.Engine
	mock   sqlmock.Sqlmock
	issuer *auth.TokenIssuer
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)

	products := store.NewProductStore(db)
	orders := store.NewOrderStore(db)
	users := store.NewUserStore(db)
	productCache := cache.NewProductCache(nil, time.Minute, logger)
	ledger := inventory.NewLedger(products, logger)
	service := fulfillment.NewService(
		fulfillment.NewPostgresRepository(db, orders, ledger),
		inventory.NewLocker(), nil, productCache, logger,
	)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, Handlers{
		Auth:     NewAuthHandler(users, issuer, logger),
		Products: NewProductHandler(products, orders, productCache, logger),
		Orders:   NewOrderHandler(orders, service, nil, logger),
		Users:    NewUserHandler(users, logger),
	}, issuer)

	return &testServer{router: router, mock: mock, issuer: issuer}
}

func (s *testServer) token(t *testing.T, id int64, role models.Role) string {
	t.Helper()
	token, err := s.issuer.Issue(&models.User{ID: id, Email: "staff@example.com", Role: role})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) expectationsMet(t *testing.T) {
	t.Helper()
	if err := s.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func orderRows(orderID string, status models.OrderStatus, items string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderRowColumns).AddRow(1, orderID, "Rahim", "rahim@example.com", "01700000000", "12 Lake Road", "Dhaka", "",
		[]byte(items), 2460.0, 0.0, 60.0, "cod", string(status), now, now)
}

const shirtItems = `[{"product_id":"p-shirt","title":"Blue Shirt","quantity":2,"price":1200,"size":"L"}]`

func shirtRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(productRowColumns).
		AddRow("p-shirt", "Blue Shirt", "blue-shirt", []byte(`[{"currency":"BDT","amount":1200}]`), "InStock", 3, "Mandatory", now, now)
}

// expectCatalog primes the product lookup that prices a new order.
func (s *testServer) expectCatalog() {
	s.mock.ExpectQuery("SELECT .* FROM products WHERE id::text = ANY").
		WillReturnRows(shirtRows())
	s.mock.ExpectQuery("SELECT product_id, name, quantity FROM product_sizes").
		WillReturnRows(shirtSizeRows())
}

func shirtSizeRows() *sqlmock.Rows {
	return sqlmock.NewRows(sizeRowColumns).
		AddRow("p-shirt", "M", 2).
		AddRow("p-shirt", "L", 1)
}
