package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"

	"storefront-svc/grpcapi"
	"storefront-svc/models"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubLedger map[string]models.AvailabilityView

func (l stubLedger) GetAvailability(ctx context.Context, productID string) (models.AvailabilityView, error) {
	v, ok := l[productID]
	if !ok {
		return models.AvailabilityView{}, models.ErrNotFound
	}
	return v, nil
}

func dialInventory(t *testing.T) *grpcapi.InventoryClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	ledger := stubLedger{"p-shirt": {
		ProductID:    "p-shirt",
		Availability: models.AvailabilityInStock,
		Quantity:     3,
		Sizes:        []models.Size{{Name: "M", Quantity: 2}, {Name: "L", Quantity: 1}},
	}}
	srv := grpcapi.NewGRPCServer(grpcapi.NewServer(ledger, zaptest.NewLogger(t)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := grpcapi.InitInventoryClient(lis.Addr().String(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRun_PrintsAvailability(t *testing.T) {
	client := dialInventory(t)

	var out bytes.Buffer
	if err := run(context.Background(), client, query{ProductID: "p-shirt"}, &out); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var resp grpcapi.GetAvailabilityResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode output %q: %v", out.String(), err)
	}
	if resp.Quantity != 3 || len(resp.Sizes) != 2 {
		t.Errorf("Unexpected availability: %+v", resp)
	}
}

func TestRun_ChecksSizedStock(t *testing.T) {
	client := dialInventory(t)

	tests := []struct {
		name      string
		q         query
		available bool
		stock     int
	}{
		{"enough M", query{ProductID: "p-shirt", Quantity: 2, Size: "M"}, true, 2},
		{"too many L", query{ProductID: "p-shirt", Quantity: 2, Size: "L"}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), client, tt.q, &out); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			var res stockResult
			if err := json.Unmarshal(out.Bytes(), &res); err != nil {
				t.Fatalf("Failed to decode output %q: %v", out.String(), err)
			}
			if res.Available != tt.available || res.Stock != tt.stock {
				t.Errorf("Expected available=%v stock=%d, got %+v", tt.available, tt.stock, res)
			}
		})
	}
}

func TestRun_UnknownProduct(t *testing.T) {
	client := dialInventory(t)

	var out bytes.Buffer
	err := run(context.Background(), client, query{ProductID: "p-gone"}, &out)
	if status.Code(err) != codes.NotFound {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no output, got %q", out.String())
	}
}
