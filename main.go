package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-svc/auth"
	"storefront-svc/cache"
	"storefront-svc/config"
	"storefront-svc/database"
	"storefront-svc/fulfillment"
	"storefront-svc/grpcapi"
	"storefront-svc/handlers"
	"storefront-svc/inventory"
	"storefront-svc/kafka"
	"storefront-svc/middleware"
	"storefront-svc/store"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	cfg := config.Load()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Initialize database; tables are created on first start
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Redis is optional: without it product reads go straight to Postgres
	redisClient, err := cache.InitRedis(cfg, logger)
	if err != nil {
		logger.Warn("Redis unavailable, product cache disabled", zap.Error(err))
	}

	// Kafka is optional as well; order events are dropped when it is down
	var events fulfillment.EventPublisher
	producer, err := kafka.InitProducer(cfg, logger)
	if err != nil {
		logger.Warn("Kafka producer unavailable, order events disabled", zap.Error(err))
	} else {
		events = kafka.NewPublisher(producer, cfg.KafkaOrderTopic, logger)
	}

	products := store.NewProductStore(db)
	orders := store.NewOrderStore(db)
	users := store.NewUserStore(db)
	ledger := inventory.NewLedger(products, logger)
	productCache := cache.NewProductCache(redisClient, cfg.ProductCacheTTL, logger)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	service := fulfillment.NewService(
		fulfillment.NewPostgresRepository(db, orders, ledger),
		inventory.NewLocker(),
		events,
		productCache,
		logger,
	)

	// Payment outcomes arrive on Kafka and move pending_payment orders on
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumer, err := kafka.InitConsumer(cfg, logger)
	if err != nil {
		logger.Warn("Kafka consumer unavailable, payment events disabled", zap.Error(err))
	} else {
		paymentConsumer := kafka.NewPaymentConsumer(consumer, cfg.KafkaPaymentTopic, service, logger)
		go func() {
			if err := paymentConsumer.Run(consumerCtx); err != nil {
				logger.Error("Payment consumer stopped", zap.Error(err))
			}
		}()
	}

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Auth:     handlers.NewAuthHandler(users, issuer, logger),
		Products: handlers.NewProductHandler(products, orders, productCache, logger),
		Orders:   handlers.NewOrderHandler(orders, service, events, logger),
		Users:    handlers.NewUserHandler(users, logger),
	}, issuer)

	// Start server
	restSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Storefront REST API started", zap.String("addr", cfg.HTTPAddr))

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	grpcServer := grpcapi.NewGRPCServer(grpcapi.NewServer(ledger, logger))

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	logger.Info("Storefront gRPC server started", zap.String("addr", cfg.GRPCAddr))

	gracefulShutdown(restSrv, grpcServer, db, redisClient, producer, consumer, stopConsumer, shutdownTracing, logger)
}

// gracefulShutdown handles SIGINT/SIGTERM and shuts down all services gracefully.
// redisClient, producer and consumer may be nil.
func gracefulShutdown(
	restSrv *http.Server,
	grpcServer *grpc.Server,
	db *sql.DB,
	redisClient *redis.Client,
	producer sarama.SyncProducer,
	consumer sarama.Consumer,
	stopConsumer context.CancelFunc,
	shutdownTracing func(),
	logger *zap.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received. Exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop REST server
	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server forced to shutdown", zap.Error(err))
	} else {
		logger.Info("REST server stopped gracefully")
	}

	// Stop gRPC server
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped gracefully")

	// Stop consuming before the producer and database go away
	stopConsumer()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Error("Failed to close Kafka consumer", zap.Error(err))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("Failed to close Kafka producer", zap.Error(err))
		} else {
			logger.Info("Kafka producer closed gracefully")
		}
	}

	// Close database
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	} else {
		logger.Info("Database connection closed gracefully")
	}

	// Close Redis cache
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis cache", zap.Error(err))
		} else {
			logger.Info("Redis cache closed gracefully")
		}
	}

	// Shutdown tracing
	shutdownTracing()
	logger.Info("Storefront service exited gracefully")
}
