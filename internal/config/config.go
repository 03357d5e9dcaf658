package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	HTTPPort    int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and lifecycle queue settings
type RabbitMQConfig struct {
	URL                 string
	LifecycleExchange   string
	LifecycleQueue      string
	LifecycleRoutingKey string
	DLQQueue            string
	PrefetchCount       int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "mcp-client-registry"),
		HTTPPort:    getEnvAsInt("SERVICE_PORT", 8181),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                 getEnv("RABBITMQ_URL", ""),
			LifecycleExchange:   getEnv("RABBITMQ_LIFECYCLE_EXCHANGE", "mcp.lifecycle.exchange"),
			LifecycleQueue:      getEnv("RABBITMQ_LIFECYCLE_QUEUE", "mcp.lifecycle.queue"),
			LifecycleRoutingKey: getEnv("RABBITMQ_LIFECYCLE_ROUTING_KEY", "mcp.client.lifecycle"),
			DLQQueue:            getEnv("RABBITMQ_DLQ_QUEUE", "mcp.lifecycle.dlq"),
			PrefetchCount:       getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
