package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName string
	HTTPAddr    string
	GRPCAddr    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost       string
	RedisPort       string
	RedisPassword   string
	ProductCacheTTL time.Duration

	KafkaBrokers      []string
	KafkaOrderTopic   string
	KafkaPaymentTopic string

	JWTSecret      string
	TokenTTL       time.Duration
	JaegerEndpoint string
	RequestTimeout time.Duration
}

func Load() Config {
	return Config{
		ServiceName: GetEnv("SERVICE_NAME", "storefront-service"),
		HTTPAddr:    GetEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:    GetEnv("GRPC_ADDR", ":50051"),

		DBHost:     GetEnv("DB_HOST", "localhost"),
		DBPort:     GetEnv("DB_PORT", "5432"),
		DBUser:     GetEnv("DB_USER", "postgres"),
		DBPassword: GetEnv("DB_PASSWORD", "postgres"),
		DBName:     GetEnv("DB_NAME", "storefrontdb"),

		RedisHost:       GetEnv("REDIS_HOST", "localhost"),
		RedisPort:       GetEnv("REDIS_PORT", "6379"),
		RedisPassword:   GetEnv("REDIS_PASSWORD", ""),
		ProductCacheTTL: GetDuration("PRODUCT_CACHE_TTL", 5*time.Minute),

		KafkaBrokers:      strings.Split(GetEnv("KAFKA_BROKER", "localhost:9092"), ","),
		KafkaOrderTopic:   GetEnv("KAFKA_ORDER_TOPIC", "order_events"),
		KafkaPaymentTopic: GetEnv("KAFKA_PAYMENT_TOPIC", "payment_events"),

		JWTSecret:      GetEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		TokenTTL:       GetDuration("TOKEN_TTL", 24*time.Hour),
		JaegerEndpoint: GetEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		RequestTimeout: GetDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDuration accepts Go duration strings ("30s") or plain seconds ("30").
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
