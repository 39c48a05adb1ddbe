package grpcapi

import (
	"context"
	"errors"

	"storefront-svc/models"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const serviceName = "storefront.InventoryService"

type GetAvailabilityRequest struct {
	ProductID string `json:"product_id"`
}

type GetAvailabilityResponse struct {
	ProductID    string              `json:"product_id"`
	Availability models.Availability `json:"availability"`
	Quantity     int                 `json:"quantity"`
	Sizes        []models.Size       `json:"sizes"`
}

type CheckStockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

type CheckStockResponse struct {
	Available bool `json:"available"`
	Stock     int  `json:"stock"`
}

type InventoryServer interface {
	GetAvailability(context.Context, *GetAvailabilityRequest) (*GetAvailabilityResponse, error)
	CheckStock(context.Context, *CheckStockRequest) (*CheckStockResponse, error)
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&inventoryServiceDesc, srv)
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailability", Handler: getAvailabilityHandler},
		{MethodName: "CheckStock", Handler: checkStockHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory",
}

func getAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAvailabilityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).GetAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetAvailability"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).GetAvailability(ctx, req.(*GetAvailabilityRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func checkStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).CheckStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CheckStock"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).CheckStock(ctx, req.(*CheckStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AvailabilityReader is satisfied by the inventory ledger.
type AvailabilityReader interface {
	GetAvailability(ctx context.Context, productID string) (models.AvailabilityView, error)
}

type Server struct {
	ledger AvailabilityReader
	logger *zap.Logger
}

func NewServer(ledger AvailabilityReader, logger *zap.Logger) *Server {
	return &Server{ledger: ledger, logger: logger}
}

// NewGRPCServer returns a gRPC server with tracing and the inventory service
// registered.
func NewGRPCServer(srv InventoryServer) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	RegisterInventoryServer(s, srv)
	return s
}

func (s *Server) GetAvailability(ctx context.Context, req *GetAvailabilityRequest) (*GetAvailabilityResponse, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "GetAvailability_gRPC")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", req.ProductID))

	if req.ProductID == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}

	view, err := s.ledger.GetAvailability(ctx, req.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, s.toStatus(err)
	}
	return &GetAvailabilityResponse{
		ProductID:    view.ProductID,
		Availability: view.Availability,
		Quantity:     view.Quantity,
		Sizes:        view.Sizes,
	}, nil
}

// CheckStock answers whether the quantity could be reserved right now. It is
// advisory; only an accepted order actually takes stock.
func (s *Server) CheckStock(ctx context.Context, req *CheckStockRequest) (*CheckStockResponse, error) {
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "CheckStock_gRPC")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	if req.ProductID == "" || req.Quantity <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id and a positive quantity are required")
	}

	view, err := s.ledger.GetAvailability(ctx, req.ProductID)
	if err != nil {
		span.RecordError(err)
		return nil, s.toStatus(err)
	}

	stock := view.Quantity
	if req.Size != "" {
		stock = 0
		for _, size := range view.Sizes {
			if size.Name == req.Size {
				stock = size.Quantity
			}
		}
	}
	available := view.Availability == models.AvailabilityInStock && stock >= req.Quantity
	span.SetAttributes(attribute.Bool("available", available))
	return &CheckStockResponse{Available: available, Stock: stock}, nil
}

func (s *Server) toStatus(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return status.Error(codes.NotFound, "product not found")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	s.logger.Error("Inventory lookup failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}
