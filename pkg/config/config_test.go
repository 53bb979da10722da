package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "graph-events", cfg.KafkaTopic)
	assert.Equal(t, "graph-consumer", cfg.ConsumerGroup)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4jURI)
	assert.Equal(t, 50, cfg.NodeBatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "events")
	t.Setenv("NODE_BATCH_SIZE", "25")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "events", cfg.KafkaTopic)
	assert.Equal(t, 25, cfg.NodeBatchSize)
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	valid := Config{
		KafkaBrokers:   []string{"localhost:9092"},
		KafkaTopic:     "events",
		ConsumerGroup:  "group",
		Neo4jURI:       "bolt://localhost:7687",
		CheckpointPath: ".checkpoints/checkpoints.db",
		NodeBatchSize:  50,
		MaxRetries:     5,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing brokers", func(c *Config) { c.KafkaBrokers = nil }},
		{"missing topic", func(c *Config) { c.KafkaTopic = "" }},
		{"missing consumer group", func(c *Config) { c.ConsumerGroup = "" }},
		{"missing graph uri", func(c *Config) { c.Neo4jURI = "" }},
		{"missing checkpoint path", func(c *Config) { c.CheckpointPath = "" }},
		{"non-positive batch size", func(c *Config) { c.NodeBatchSize = 0 }},
		{"non-positive retries", func(c *Config) { c.MaxRetries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetEnvInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("NODE_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.NodeBatchSize)
}
