package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"graphpipe/internal/eventlog"
	"graphpipe/internal/ingest"
	"graphpipe/pkg/config"
	"graphpipe/pkg/logger"
)

func main() {
	maxRows := flag.Int("max-rows", 0, "maximum number of rows to read per CSV (0 = all rows)")
	articlesCSV := flag.String("articles", ingest.ArticlesCSV, "path to the articles CSV")
	customersCSV := flag.String("customers", ingest.CustomersCSV, "path to the customers CSV")
	transactionsCSV := flag.String("transactions", ingest.TransactionsCSV, "path to the transactions CSV")
	flag.Parse()

	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting CSV bulk load...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	producer := eventlog.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	ctx := context.Background()
	opts := ingest.Options{MaxRows: *maxRows}

	// Nodes first so edges reference ids the consumer has already seen
	if err := ingest.ArticleNodes(ctx, producer, *articlesCSV, opts); err != nil {
		log.Fatal("Failed to ingest article nodes", zap.Error(err))
	}
	if err := ingest.CustomerNodes(ctx, producer, *customersCSV, opts); err != nil {
		log.Fatal("Failed to ingest customer nodes", zap.Error(err))
	}
	if err := ingest.AllEdges(ctx, producer, *articlesCSV, *transactionsCSV, opts); err != nil {
		log.Fatal("Failed to ingest edges", zap.Error(err))
	}

	log.Info("CSV bulk load complete.")
}
