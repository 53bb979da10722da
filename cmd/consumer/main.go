package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"graphpipe/internal/checkpoint"
	"graphpipe/internal/eventlog"
	"graphpipe/internal/graph"
	"graphpipe/internal/processor"
	"graphpipe/pkg/config"
	"graphpipe/pkg/logger"
)

func main() {
	fromBeginning := flag.Bool("from-beginning", false, "start partitions without a checkpoint from the earliest event instead of latest")
	noResume := flag.Bool("no-resume", false, "ignore saved checkpoints and start every partition from the configured position")
	flag.Parse()

	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph event consumer...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Open the checkpoint store
	store, err := checkpoint.Open(cfg.CheckpointPath, checkpoint.Identity{
		Namespace:     cfg.KafkaBrokers[0],
		Stream:        cfg.KafkaTopic,
		ConsumerGroup: cfg.ConsumerGroup,
	})
	if err != nil {
		log.Fatal("Failed to open checkpoint store", zap.Error(err))
	}
	defer store.Close()

	// Wire the graph engine
	conn := graph.NewConnection(cfg.Neo4jURI, cfg.Neo4jDatabase, graph.StaticCredentials{
		Username: cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
	})
	engine := graph.NewEngine(conn, graph.WithMaxRetries(cfg.MaxRetries))

	// Wire the consumer and processor
	consumer := eventlog.NewConsumer(eventlog.ConsumerConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaTopic,
		ConsumerGroup: cfg.ConsumerGroup,
	}, store)
	proc := processor.New(engine, consumer, cfg.NodeBatchSize)

	start := eventlog.StartLatest
	if *fromBeginning {
		start = eventlog.StartEarliest
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("Consumer running. Press CTRL-C to exit.",
		zap.String("topic", cfg.KafkaTopic),
		zap.String("consumer_group", cfg.ConsumerGroup),
		zap.Int("node_batch_size", cfg.NodeBatchSize),
		zap.Bool("from_beginning", *fromBeginning),
	)

	if err := proc.Run(ctx, start, !*noResume); err != nil {
		log.Fatal("Consumer terminated with error", zap.Error(err))
	}

	log.Info("Consumer stopped.")
}
