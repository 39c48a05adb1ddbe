package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-svc/config"
	"storefront-svc/middleware"
	"storefront-svc/models"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func InitConsumer(cfg config.Config, logger *zap.Logger) (sarama.Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Retry.Backoff = 1 * time.Second

	consumer, err := sarama.NewConsumer(cfg.KafkaBrokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized")
	return consumer, nil
}

// PaymentHandler applies the outcome of an online payment to its order.
type PaymentHandler interface {
	ConfirmPayment(ctx context.Context, orderID string) (*models.Order, error)
	FailPayment(ctx context.Context, orderID string) (*models.Order, error)
}

type PaymentConsumer struct {
	consumer   sarama.Consumer
	topic      string
	handler    PaymentHandler
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewPaymentConsumer(consumer sarama.Consumer, topic string, handler PaymentHandler, logger *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		consumer:   consumer,
		topic:      topic,
		handler:    handler,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Run consumes payment events until ctx is cancelled.
func (pc *PaymentConsumer) Run(ctx context.Context) error {
	partitionConsumer, err := pc.consumer.ConsumePartition(pc.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	pc.logger.Info("Kafka consumer started", zap.String("topic", pc.topic))

	for {
		select {
		case <-ctx.Done():
			pc.logger.Info("Kafka consumer stopped", zap.String("topic", pc.topic))
			return nil
		case message, ok := <-partitionConsumer.Messages():
			if !ok {
				return nil
			}
			if err := pc.handleMessageWithRetry(ctx, message); err != nil {
				pc.logger.Error("Failed to handle message after retries",
					zap.Int64("offset", message.Offset),
					zap.Error(err),
				)
			}
		case err, ok := <-partitionConsumer.Errors():
			if !ok {
				return nil
			}
			pc.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func (pc *PaymentConsumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	var lastErr error
	for attempt := 1; attempt <= pc.maxRetries; attempt++ {
		err := pc.handleMessage(ctx, message)
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
		lastErr = err
		if attempt < pc.maxRetries {
			backoff := time.Duration(attempt) * pc.backoff
			pc.logger.Warn("Retrying message handling",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", pc.maxRetries, lastErr)
}

// permanent errors will fail the same way on every redelivery.
func permanent(err error) bool {
	var syntaxErr *json.SyntaxError
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, errMalformedEvent) ||
		errors.As(err, &syntaxErr)
}

var errMalformedEvent = errors.New("malformed payment event")

func (pc *PaymentConsumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, consumerHeaderCarrier(message.Headers))
	ctx, span := otel.Tracer("storefront-service").Start(ctx, "ProcessPaymentEvent")
	defer span.End()

	var event models.PaymentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.OrderID == "" {
		return fmt.Errorf("%w: missing order_id", errMalformedEvent)
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("order.id", event.OrderID),
		attribute.String("transaction.id", event.TransactionID),
	)

	traceID := middleware.GetTraceID(ctx)
	pc.logger.Info("Received event",
		zap.String("trace_id", traceID),
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.OrderID),
	)

	var err error
	switch event.EventType {
	case "payment_success":
		_, err = pc.handler.ConfirmPayment(ctx, event.OrderID)
	case "payment_failed":
		_, err = pc.handler.FailPayment(ctx, event.OrderID)
	default:
		pc.logger.Debug("Unknown event type", zap.String("event_type", event.EventType))
		middleware.RecordEvent("consumed", event.EventType, "ignored")
		return nil
	}

	if err != nil {
		span.RecordError(err)
		middleware.RecordEvent("consumed", event.EventType, "error")
		return err
	}
	middleware.RecordEvent("consumed", event.EventType, "success")
	return nil
}
