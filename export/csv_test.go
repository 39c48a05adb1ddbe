package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"storefront-svc/models"
)

func sampleOrders() []*models.Order {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return []*models.Order{
		{
			OrderID: "ORDER_A1",
			Customer: models.CustomerInfo{
				Name:    `Rahim "Ray" Uddin`,
				Email:   "rahim@example.com",
				Phone:   "01700000000",
				Address: "House 5, Road 7",
				City:    "Dhaka",
			},
			Products:       []models.LineItem{{ProductID: "p-1", Quantity: 1}, {ProductID: "p-2", Quantity: 2}},
			Total:          1520,
			Discount:       100,
			ShippingCharge: 60,
			PaymentMethod:  models.PaymentMethodCOD,
			Status:         models.OrderStatusPending,
			CreatedAt:      created,
		},
		{
			OrderID:       "ORDER_B2",
			Customer:      models.CustomerInfo{Name: "Karim", Email: "karim@example.com", Phone: "018", Address: "Line one\nLine two"},
			Products:      []models.LineItem{{ProductID: "p-3", Quantity: 1}},
			Total:         99.5,
			PaymentMethod: models.PaymentMethodBkash,
			Status:        models.OrderStatusAccepted,
			CreatedAt:     created,
		},
	}
}

func TestWriteOrdersCSV_LinesAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOrdersCSV(&buf, sampleOrders()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != `"Order ID","Customer Name","Email","Phone","Address","Payment Method","Total Amount","Discount","Shipping Charge","Status","Order Date","Products Count"` {
		t.Errorf("Unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"House 5, Road 7, Dhaka"`) {
		t.Errorf("Expected quoted address with city, got %s", lines[1])
	}
	if !strings.Contains(lines[1], `"Rahim ""Ray"" Uddin"`) {
		t.Errorf("Expected doubled quotes, got %s", lines[1])
	}
	if !strings.Contains(lines[1], `"2026-03-14 09:30:00","2"`) {
		t.Errorf("Expected date and product count, got %s", lines[1])
	}
}

func TestWriteOrdersCSV_ParsesBack(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOrdersCSV(&buf, sampleOrders()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	first := records[1]
	if len(first) != 12 {
		t.Fatalf("Expected 12 fields, got %d", len(first))
	}
	if first[1] != `Rahim "Ray" Uddin` || first[6] != "1520.00" || first[7] != "100.00" {
		t.Errorf("Unexpected record: %v", first)
	}
	if records[2][4] != "Line one Line two" {
		t.Errorf("Expected flattened address, got %q", records[2][4])
	}
}

func TestWriteOrdersCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOrdersCSV(&buf, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("Expected only the header, got %q", buf.String())
	}
}
