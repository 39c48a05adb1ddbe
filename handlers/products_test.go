package handlers

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"storefront-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func TestProductHandler_GetProducts_Success(t *testing.T) {
	s := setupServer(t)

	now := time.Now()
	s.mock.ExpectQuery("SELECT .* FROM products WHERE title ILIKE \\$1 OR slug ILIKE \\$1 ORDER BY created_at DESC LIMIT 50 OFFSET 0").
		WithArgs("%shirt%").
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow("p-shirt", "Blue Shirt", "blue-shirt", []byte(`[]`), "InStock", 3, "Mandatory", now, now).
			AddRow("p-mug", "Shirt Mug", "shirt-mug", []byte(`[]`), "InStock", 4, "None", now, now))
	s.mock.ExpectQuery("SELECT product_id, name, quantity FROM product_sizes").
		WillReturnRows(shirtSizeRows())

	w := s.do(t, "GET", "/products?search=shirt", nil, "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var products []models.Product
	decode(t, w, &products)
	if len(products) != 2 || len(products[0].Sizes) != 2 || len(products[1].Sizes) != 0 {
		t.Errorf("Unexpected products: %+v", products)
	}
	s.expectationsMet(t)
}

func TestProductHandler_GetProduct_Success(t *testing.T) {
	s := setupServer(t)

	s.mock.ExpectQuery("SELECT .* FROM products WHERE id = \\$1").
		WithArgs("p-shirt").
		WillReturnRows(shirtRows())
	s.mock.ExpectQuery("SELECT product_id, name, quantity FROM product_sizes").
		WillReturnRows(shirtSizeRows())

	w := s.do(t, "GET", "/products/p-shirt", nil, "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var p models.Product
	decode(t, w, &p)
	if p.Availability != models.AvailabilityInStock || p.Quantity != 3 {
		t.Errorf("Unexpected product: %+v", p)
	}
	s.expectationsMet(t)
}

func TestProductHandler_GetProduct_NotFound(t *testing.T) {
	s := setupServer(t)

	s.mock.ExpectQuery("SELECT .* FROM products WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	w := s.do(t, "GET", "/products/missing", nil, "")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	s.expectationsMet(t)
}

func TestProductHandler_GetProduct_MalformedIDKeepsBreakerClosed(t *testing.T) {
	s := setupServer(t)

	for i := 0; i < 6; i++ {
		s.mock.ExpectQuery("SELECT .* FROM products WHERE id = \\$1").
			WithArgs("not-a-uuid").
			WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})
	}
	s.mock.ExpectQuery("SELECT .* FROM products WHERE id = \\$1").
		WithArgs("p-shirt").
		WillReturnRows(shirtRows())
	s.mock.ExpectQuery("SELECT product_id, name, quantity FROM product_sizes").
		WillReturnRows(shirtSizeRows())

	for i := 0; i < 6; i++ {
		if w := s.do(t, "GET", "/products/not-a-uuid", nil, ""); w.Code != http.StatusNotFound {
			t.Fatalf("Request %d: expected status %d, got %d", i, http.StatusNotFound, w.Code)
		}
	}
	if w := s.do(t, "GET", "/products/p-shirt", nil, ""); w.Code != http.StatusOK {
		t.Errorf("Expected status %d after malformed ids, got %d", http.StatusOK, w.Code)
	}
	s.expectationsMet(t)
}

func TestProductHandler_GetProductBySlug(t *testing.T) {
	s := setupServer(t)

	s.mock.ExpectQuery("SELECT .* FROM products WHERE slug = \\$1").
		WithArgs("blue-shirt").
		WillReturnRows(shirtRows())
	s.mock.ExpectQuery("SELECT product_id, name, quantity FROM product_sizes").
		WillReturnRows(shirtSizeRows())

	w := s.do(t, "GET", "/products/slug/blue-shirt", nil, "")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	s.expectationsMet(t)
}

func shirtProductRequest(sizes ...models.Size) models.ProductRequest {
	return models.ProductRequest{
		Title:           "Blue Shirt",
		Prices:          []models.Price{{Currency: "BDT", Amount: 1200}},
		Availability:    models.AvailabilityInStock,
		Quantity:        3,
		SizeRequirement: models.SizeRequirementMandatory,
		Sizes:           sizes,
	}
}

func TestProductHandler_CreateProduct_Success(t *testing.T) {
	s := setupServer(t)

	now := time.Now()
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("blue-shirt", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	s.mock.ExpectQuery("INSERT INTO products").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	s.mock.ExpectExec("INSERT INTO product_sizes").
		WithArgs(sqlmock.AnyArg(), 0, "M", 2).
		WillReturnResult(sqlmock.NewResult(1, 1))
	s.mock.ExpectExec("INSERT INTO product_sizes").
		WithArgs(sqlmock.AnyArg(), 1, "L", 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	s.mock.ExpectCommit()

	w := s.do(t, "POST", "/products", shirtProductRequest(
		models.Size{Name: "M", Quantity: 2},
		models.Size{Name: "L", Quantity: 1},
	), s.token(t, 1, models.RoleModerator))

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var p models.Product
	decode(t, w, &p)
	if p.Slug != "blue-shirt" || p.ID == "" {
		t.Errorf("Unexpected product: %+v", p)
	}
	s.expectationsMet(t)
}

func TestProductHandler_CreateProduct_SizeSumMismatch(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, "POST", "/products", shirtProductRequest(
		models.Size{Name: "M", Quantity: 2},
		models.Size{Name: "L", Quantity: 2},
	), s.token(t, 1, models.RoleAdmin))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var resp struct {
		Details map[string]string `json:"details"`
	}
	decode(t, w, &resp)
	if resp.Details["sizes"] == "" {
		t.Errorf("Expected a sizes detail, got %v", resp.Details)
	}
	s.expectationsMet(t)
}

func TestProductHandler_CreateProduct_RequiresStaff(t *testing.T) {
	s := setupServer(t)
	body := shirtProductRequest(models.Size{Name: "M", Quantity: 3})

	if w := s.do(t, "POST", "/products", body, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d without a token, got %d", http.StatusUnauthorized, w.Code)
	}
	if w := s.do(t, "POST", "/products", body, s.token(t, 5, models.RoleUser)); w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d for a customer, got %d", http.StatusForbidden, w.Code)
	}
}

func TestProductHandler_UpdateProduct_NotFound(t *testing.T) {
	s := setupServer(t)

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	s.mock.ExpectQuery("UPDATE products SET").
		WillReturnError(sql.ErrNoRows)
	s.mock.ExpectRollback()

	w := s.do(t, "PUT", "/products/p-gone", shirtProductRequest(models.Size{Name: "M", Quantity: 3}), s.token(t, 1, models.RoleAdmin))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	s.expectationsMet(t)
}

func TestProductHandler_DeleteProduct_OpenOrders(t *testing.T) {
	s := setupServer(t)

	s.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	w := s.do(t, "DELETE", "/products/p-shirt", nil, s.token(t, 1, models.RoleAdmin))

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
	s.expectationsMet(t)
}

func TestProductHandler_DeleteProduct_Success(t *testing.T) {
	s := setupServer(t)

	s.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	s.mock.ExpectExec("DELETE FROM products WHERE id = \\$1").
		WithArgs("p-shirt").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := s.do(t, "DELETE", "/products/p-shirt", nil, s.token(t, 1, models.RoleAdmin))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	s.expectationsMet(t)
}

func TestProductHandler_DeleteProduct_MalformedID(t *testing.T) {
	s := setupServer(t)

	s.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	s.mock.ExpectExec("DELETE FROM products WHERE id = \\$1").
		WithArgs("not-a-uuid").
		WillReturnError(&pq.Error{Code: "22P02"})

	w := s.do(t, "DELETE", "/products/not-a-uuid", nil, s.token(t, 1, models.RoleAdmin))

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	s.expectationsMet(t)
}
