package grpcapi

import (
	"context"
	"fmt"
	"time"

	"storefront-svc/circuitbreaker"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// InventoryClient calls a remote inventory service through a circuit
// breaker. Caller errors such as NotFound do not trip the breaker.
type InventoryClient struct {
	conn           *grpc.ClientConn
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

func InitInventoryClient(address string, logger *zap.Logger, opts ...grpc.DialOption) (*InventoryClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Inventory Service: %w", err)
	}

	return &InventoryClient{
		conn:           conn,
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second, circuitbreaker.WithFailurePredicate(isServerFault)),
		logger:         logger,
	}, nil
}

func isServerFault(err error) bool {
	switch status.Code(err) {
	case codes.NotFound, codes.InvalidArgument, codes.Canceled:
		return false
	}
	return true
}

func (ic *InventoryClient) GetAvailability(ctx context.Context, productID string) (*GetAvailabilityResponse, error) {
	resp := new(GetAvailabilityResponse)
	err := ic.circuitBreaker.Execute(ctx, func() error {
		return ic.conn.Invoke(ctx, "/"+serviceName+"/GetAvailability", &GetAvailabilityRequest{ProductID: productID}, resp)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (ic *InventoryClient) CheckStock(ctx context.Context, productID string, quantity int, size string) (bool, int, error) {
	resp := new(CheckStockResponse)
	err := ic.circuitBreaker.Execute(ctx, func() error {
		return ic.conn.Invoke(ctx, "/"+serviceName+"/CheckStock", &CheckStockRequest{
			ProductID: productID,
			Quantity:  quantity,
			Size:      size,
		}, resp)
	})
	if err != nil {
		return false, 0, err
	}
	return resp.Available, resp.Stock, nil
}

func (ic *InventoryClient) BreakerState() circuitbreaker.State {
	return ic.circuitBreaker.GetState()
}

func (ic *InventoryClient) Close() error {
	return ic.conn.Close()
}
