package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"graphpipe/internal/checkpoint"
	"graphpipe/pkg/config"
	"graphpipe/pkg/logger"
)

// Checkpoint maintenance tool. Default mode skips the backlog by setting
// every partition's checkpoint to the latest log position; -reset deletes all
// checkpoints so the consumer replays from the beginning.
func main() {
	reset := flag.Bool("reset", false, "delete all checkpoints so the consumer replays from the beginning")
	flag.Parse()

	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	store, err := checkpoint.Open(cfg.CheckpointPath, checkpoint.Identity{
		Namespace:     cfg.KafkaBrokers[0],
		Stream:        cfg.KafkaTopic,
		ConsumerGroup: cfg.ConsumerGroup,
	})
	if err != nil {
		log.Fatal("Failed to open checkpoint store", zap.Error(err))
	}
	defer store.Close()

	if *reset {
		count, err := store.DeleteAll()
		if err != nil {
			log.Fatal("Failed to delete checkpoints", zap.Error(err))
		}
		log.Info("Checkpoints deleted; consumer will replay from the beginning",
			zap.Int("deleted", count),
		)
		return
	}

	updated, skipped, err := skipToLatest(context.Background(), cfg, store)
	if err != nil {
		log.Fatal("Failed to update checkpoints", zap.Error(err))
	}
	log.Info("Checkpoints set to latest; consumer will only process new events",
		zap.Int("partitions_updated", updated),
		zap.Int64("events_skipped", skipped),
	)
}

// skipToLatest writes a checkpoint at the current end of every partition
func skipToLatest(ctx context.Context, cfg *config.Config, store *checkpoint.Store) (int, int64, error) {
	conn, err := kafka.DialContext(ctx, "tcp", cfg.KafkaBrokers[0])
	if err != nil {
		return 0, 0, fmt.Errorf("failed to connect to log: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(cfg.KafkaTopic)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list partitions: %w", err)
	}

	log := logger.Get()
	updated := 0
	var skipped int64

	for _, partition := range partitions {
		leader, err := kafka.DialLeader(ctx, "tcp", cfg.KafkaBrokers[0], cfg.KafkaTopic, partition.ID)
		if err != nil {
			return updated, skipped, fmt.Errorf("failed to dial leader for partition %d: %w", partition.ID, err)
		}

		first, last, err := leader.ReadOffsets()
		_ = leader.Close()
		if err != nil {
			return updated, skipped, fmt.Errorf("failed to read offsets for partition %d: %w", partition.ID, err)
		}

		// last is the next offset to be written; the newest committed event
		// sits at last-1
		cp := checkpoint.Checkpoint{
			Offset:         strconv.FormatInt(last-1, 10),
			SequenceNumber: last - 1,
		}
		if err := store.Reset(partition.ID, cp); err != nil {
			return updated, skipped, fmt.Errorf("failed to reset checkpoint for partition %d: %w", partition.ID, err)
		}

		log.Info("Partition checkpoint updated",
			zap.Int("partition", partition.ID),
			zap.Int64("last_sequence_number", last-1),
			zap.Int64("events_skipped", last-first),
		)
		updated++
		skipped += last - first
	}

	return updated, skipped, nil
}
