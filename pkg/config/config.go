package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"graphpipe/pkg/errors"
)

// Config holds all pipeline configuration
type Config struct {
	// App
	Env string

	// Event log (Kafka)
	KafkaBrokers  []string
	KafkaTopic    string
	ConsumerGroup string

	// Graph store (Neo4j)
	Neo4jURI      string
	Neo4jDatabase string
	Neo4jUser     string
	Neo4jPassword string

	// Checkpoints
	CheckpointPath string

	// Processing
	NodeBatchSize int
	MaxRetries    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "graph-events"),
		ConsumerGroup:  getEnv("CONSUMER_GROUP", "graph-consumer"),
		Neo4jURI:       getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jDatabase:  getEnv("NEO4J_DATABASE", "neo4j"),
		Neo4jUser:      getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:  getEnv("NEO4J_PASSWORD", "password"),
		CheckpointPath: getEnv("CHECKPOINT_PATH", ".checkpoints/checkpoints.db"),
		NodeBatchSize:  getEnvInt("NODE_BATCH_SIZE", 50),
		MaxRetries:     getEnvInt("MAX_RETRIES", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.NewConfigMissingRequired("KAFKA_BROKERS")
	}
	if c.KafkaTopic == "" {
		return errors.NewConfigMissingRequired("KAFKA_TOPIC")
	}
	if c.ConsumerGroup == "" {
		return errors.NewConfigMissingRequired("CONSUMER_GROUP")
	}
	if c.Neo4jURI == "" {
		return errors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.CheckpointPath == "" {
		return errors.NewConfigMissingRequired("CHECKPOINT_PATH")
	}
	if c.NodeBatchSize <= 0 {
		return fmt.Errorf("NODE_BATCH_SIZE must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive")
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
