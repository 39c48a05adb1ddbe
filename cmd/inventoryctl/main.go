// Command inventoryctl queries a running storefront's inventory service over
// gRPC and prints the result as JSON.
//
//	inventoryctl -product <id> [-quantity 2 -size M]
//
// Without -quantity it prints the product's availability; with it, whether
// that many units can be reserved.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"storefront-svc/config"
	"storefront-svc/grpcapi"

	"go.uber.org/zap"
)

type inventoryReader interface {
	GetAvailability(ctx context.Context, productID string) (*grpcapi.GetAvailabilityResponse, error)
	CheckStock(ctx context.Context, productID string, quantity int, size string) (bool, int, error)
}

type query struct {
	ProductID string
	Quantity  int
	Size      string
}

type stockResult struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Available bool   `json:"available"`
	Stock     int    `json:"stock"`
}

func main() {
	addr := flag.String("addr", config.GetEnv("GRPC_ADDR", ":50051"), "inventory service address")
	productID := flag.String("product", "", "product id")
	quantity := flag.Int("quantity", 0, "units to check; 0 prints availability")
	size := flag.String("size", "", "size variant")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if *productID == "" {
		logger.Fatal("-product is required")
	}

	target := *addr
	if strings.HasPrefix(target, ":") {
		target = "localhost" + target
	}
	client, err := grpcapi.InitInventoryClient(target, logger)
	if err != nil {
		logger.Fatal("Failed to create inventory client", zap.Error(err))
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	q := query{ProductID: *productID, Quantity: *quantity, Size: *size}
	if err := run(ctx, client, q, os.Stdout); err != nil {
		logger.Error("Inventory query failed",
			zap.String("product_id", q.ProductID),
			zap.String("breaker_state", client.BreakerState().String()),
			zap.Error(err),
		)
		os.Exit(1)
	}
}

func run(ctx context.Context, client inventoryReader, q query, out io.Writer) error {
	var result any
	if q.Quantity > 0 {
		available, stock, err := client.CheckStock(ctx, q.ProductID, q.Quantity, q.Size)
		if err != nil {
			return fmt.Errorf("check stock: %w", err)
		}
		result = stockResult{ProductID: q.ProductID, Quantity: q.Quantity, Size: q.Size, Available: available, Stock: stock}
	} else {
		resp, err := client.GetAvailability(ctx, q.ProductID)
		if err != nil {
			return fmt.Errorf("get availability: %w", err)
		}
		result = resp
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
