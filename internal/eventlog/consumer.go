package eventlog

import (
	"context"
	goerrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graphpipe/internal/checkpoint"
	"graphpipe/internal/events"
	pkgerrors "graphpipe/pkg/errors"
	"graphpipe/pkg/logger"
)

// StartPosition selects where a partition without a saved checkpoint begins
type StartPosition int

const (
	// StartEarliest replays the partition from the beginning of the log
	StartEarliest StartPosition = iota
	// StartLatest delivers only events appended after the consumer starts
	StartLatest
)

// Handler signatures for the closed set of event kinds the log carries
type (
	NodeHandler          func(ctx context.Context, event events.NodeEvent) error
	EdgeHandler          func(ctx context.Context, event events.EdgeEvent) error
	BatchCompleteHandler func(ctx context.Context) error
)

// CheckpointStore is the narrow persistence surface the consumer needs
type CheckpointStore interface {
	Get(partition int) (checkpoint.Checkpoint, bool, error)
	Save(partition int, cp checkpoint.Checkpoint) error
}

// partitionReader is one ordered message source. *kafka.Reader satisfies it;
// tests substitute a scripted fake.
type partitionReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ConsumerConfig carries the log coordinates and batching knobs
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	BatchSize     int           // max events dispatched before a checkpoint; default 100
	MaxWait       time.Duration // how long to wait filling a batch; default 2s
}

// Consumer reads the partitioned log and delivers events in per-partition
// order to the registered handlers. Delivery is at-least-once: the checkpoint
// is saved only after a batch's handlers have all completed, so a crash in
// between causes the batch to be re-delivered on restart. Handlers must be
// idempotent under replay.
type Consumer struct {
	config      ConsumerConfig
	checkpoints CheckpointStore

	onNode          NodeHandler
	onEdge          EdgeHandler
	onBatchComplete BatchCompleteHandler

	newReader      func(partition int, offset int64) partitionReader
	listPartitions func(ctx context.Context) ([]int, error)

	logger *zap.Logger
}

// NewConsumer creates a consumer over the given log and checkpoint store
func NewConsumer(config ConsumerConfig, checkpoints CheckpointStore) *Consumer {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 2 * time.Second
	}

	c := &Consumer{
		config:      config,
		checkpoints: checkpoints,
		logger:      logger.Get(),
	}
	c.newReader = c.newKafkaReader
	c.listPartitions = c.listKafkaPartitions
	return c
}

// SetNodeHandler registers the handler for node events
func (c *Consumer) SetNodeHandler(handler NodeHandler) *Consumer {
	c.onNode = handler
	return c
}

// SetEdgeHandler registers the handler for edge events
func (c *Consumer) SetEdgeHandler(handler EdgeHandler) *Consumer {
	c.onEdge = handler
	return c
}

// SetBatchCompleteHandler registers the handler invoked after each delivered
// batch, before the checkpoint is saved
func (c *Consumer) SetBatchCompleteHandler(handler BatchCompleteHandler) *Consumer {
	c.onBatchComplete = handler
	return c
}

// Run consumes every partition until the context is cancelled. Partitions
// with a saved checkpoint resume just past it when resumeFromCheckpoint is
// set; others start from start. Blocks until all partition workers return.
func (c *Consumer) Run(ctx context.Context, start StartPosition, resumeFromCheckpoint bool) error {
	partitions, err := c.listPartitions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	c.logger.Info("Starting consumer",
		zap.String("topic", c.config.Topic),
		zap.String("consumer_group", c.config.ConsumerGroup),
		zap.Int("partitions", len(partitions)),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, partition := range partitions {
		partition := partition
		group.Go(func() error {
			return c.consumePartition(groupCtx, partition, start, resumeFromCheckpoint)
		})
	}
	return group.Wait()
}

// consumePartition is one partition's sequential processing loop. The next
// batch is not pulled until the current one's checkpoint is saved; a slow
// graph store therefore throttles consumption.
func (c *Consumer) consumePartition(ctx context.Context, partition int, start StartPosition, resume bool) error {
	offset, err := c.resolveStartOffset(partition, start, resume)
	if err != nil {
		return err
	}

	reader := c.newReader(partition, offset)
	defer reader.Close()

	for {
		batch, err := c.fetchBatch(ctx, reader, partition)
		if err != nil {
			if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if len(batch) == 0 {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		// The in-flight batch finishes even if shutdown arrives mid-batch;
		// abandoning a half-applied batch would leave it neither completed
		// nor checkpointed.
		processCtx := context.WithoutCancel(ctx)

		for _, msg := range batch {
			if err := c.dispatch(processCtx, partition, msg); err != nil {
				return err
			}
		}

		if c.onBatchComplete != nil {
			if err := c.onBatchComplete(processCtx); err != nil {
				return fmt.Errorf("batch complete handler failed for partition %d: %w", partition, err)
			}
		}

		last := batch[len(batch)-1]
		cp := checkpoint.Checkpoint{
			Offset:         strconv.FormatInt(last.Offset, 10),
			SequenceNumber: last.Offset,
		}
		if err := c.checkpoints.Save(partition, cp); err != nil {
			return pkgerrors.NewCheckpointSaveFailed(partition, err)
		}

		c.logger.Debug("Batch processed",
			zap.Int("partition", partition),
			zap.Int("events", len(batch)),
			zap.Int64("sequence_number", cp.SequenceNumber),
		)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// fetchBatch blocks for the first message, then fills the batch until the
// size bound or MaxWait elapses
func (c *Consumer) fetchBatch(ctx context.Context, reader partitionReader, partition int) ([]kafka.Message, error) {
	first, err := reader.FetchMessage(ctx)
	if err != nil {
		if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, pkgerrors.NewTransportFetchFailed(partition, err)
	}

	batch := []kafka.Message{first}
	for len(batch) < c.config.BatchSize {
		fillCtx, cancel := context.WithTimeout(ctx, c.config.MaxWait)
		msg, err := reader.FetchMessage(fillCtx)
		cancel()
		if err != nil {
			if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, pkgerrors.NewTransportFetchFailed(partition, err)
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// dispatch decodes one message and delivers it to the matching handler.
// Unknown and malformed events are logged and skipped, never fatal.
func (c *Consumer) dispatch(ctx context.Context, partition int, msg kafka.Message) error {
	decoded, err := events.Decode(msg.Value)
	if err != nil {
		c.logger.Warn("Skipping undecodable event",
			zap.Int("partition", partition),
			zap.Int64("sequence_number", msg.Offset),
			zap.Error(err),
		)
		return nil
	}

	switch decoded.Kind {
	case events.KindNode:
		if c.onNode == nil {
			return nil
		}
		if err := c.onNode(ctx, decoded.Node); err != nil {
			return fmt.Errorf("node handler failed for event %s: %w", decoded.Node.EventID, err)
		}
	case events.KindEdge:
		if c.onEdge == nil {
			return nil
		}
		if err := c.onEdge(ctx, decoded.Edge); err != nil {
			return fmt.Errorf("edge handler failed for event %s: %w", decoded.Edge.EventID, err)
		}
	}
	return nil
}

// resolveStartOffset maps a checkpoint (or the configured default position)
// onto a concrete log offset
func (c *Consumer) resolveStartOffset(partition int, start StartPosition, resume bool) (int64, error) {
	if resume {
		cp, ok, err := c.checkpoints.Get(partition)
		if err != nil {
			return 0, fmt.Errorf("failed to load checkpoint for partition %d: %w", partition, err)
		}
		if ok {
			c.logger.Info("Resuming partition from checkpoint",
				zap.Int("partition", partition),
				zap.String("offset", cp.Offset),
				zap.Int64("sequence_number", cp.SequenceNumber),
			)
			return cp.SequenceNumber + 1, nil
		}
	}

	if start == StartLatest {
		return kafka.LastOffset, nil
	}
	return kafka.FirstOffset, nil
}

func (c *Consumer) newKafkaReader(partition int, offset int64) partitionReader {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   c.config.Brokers,
		Topic:     c.config.Topic,
		Partition: partition,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   time.Second,
	})
	if err := reader.SetOffset(offset); err != nil {
		c.logger.Warn("Failed to set reader offset",
			zap.Int("partition", partition),
			zap.Int64("offset", offset),
			zap.Error(err),
		)
	}
	return reader
}

func (c *Consumer) listKafkaPartitions(ctx context.Context) ([]int, error) {
	conn, err := kafka.DialContext(ctx, "tcp", c.config.Brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	parts, err := conn.ReadPartitions(c.config.Topic)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.ID)
	}
	return ids, nil
}
