package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"graphpipe/internal/events"
	pkgerrors "graphpipe/pkg/errors"
	"graphpipe/pkg/logger"
)

// defaultMaxBatchBytes bounds the wire size of a single append. Matches the
// transport's per-request limit.
const defaultMaxBatchBytes = 1_000_000

// messageWriter is the transport surface the producer appends through.
// *kafka.Writer satisfies it.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer appends graph events to the partitioned log in size-bounded
// batches. Events sharing a partition key land in the same partition in send
// order; events without a key are spread round-robin.
type Producer struct {
	writer        messageWriter
	topic         string
	maxBatchBytes int
	logger        *zap.Logger
}

// NewProducer creates a producer for the given brokers and topic
func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &keyedBalancer{},
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer:        w,
		topic:         topic,
		maxBatchBytes: defaultMaxBatchBytes,
		logger:        logger.Get(),
	}
}

// Send marshals events and appends them to the log. Batches are packed up to
// the byte limit; when adding an event would overflow, the current batch is
// flushed and a new one started. There is no atomicity across a flushed batch
// boundary.
func (p *Producer) Send(ctx context.Context, evts []interface{}, partitionKey string) error {
	if len(evts) == 0 {
		return nil
	}

	var key []byte
	if partitionKey != "" {
		key = []byte(partitionKey)
	}

	var batch []kafka.Message
	batchBytes := 0

	for _, event := range evts {
		payload, err := events.Encode(event)
		if err != nil {
			return err
		}
		size := len(payload) + len(key)
		if size > p.maxBatchBytes {
			return fmt.Errorf("event of %d bytes exceeds batch limit of %d", size, p.maxBatchBytes)
		}

		if batchBytes+size > p.maxBatchBytes {
			if err := p.flush(ctx, batch); err != nil {
				return err
			}
			batch = nil
			batchBytes = 0
		}

		batch = append(batch, kafka.Message{Key: key, Value: payload})
		batchBytes += size
	}

	return p.flush(ctx, batch)
}

// SendNodeEvents appends a batch of node events
func (p *Producer) SendNodeEvents(ctx context.Context, evts []events.NodeEvent, partitionKey string) error {
	boxed := make([]interface{}, len(evts))
	for i, e := range evts {
		boxed[i] = e
	}
	return p.Send(ctx, boxed, partitionKey)
}

// SendEdgeEvents appends a batch of edge events
func (p *Producer) SendEdgeEvents(ctx context.Context, evts []events.EdgeEvent, partitionKey string) error {
	boxed := make([]interface{}, len(evts))
	for i, e := range evts {
		boxed[i] = e
	}
	return p.Send(ctx, boxed, partitionKey)
}

// Close releases the underlying writer
func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) flush(ctx context.Context, batch []kafka.Message) error {
	if len(batch) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		return pkgerrors.NewTransportSendFailed(p.topic, err)
	}
	p.logger.Debug("Appended batch to log",
		zap.String("topic", p.topic),
		zap.Int("events", len(batch)),
	)
	return nil
}

// keyedBalancer hashes keyed messages for stable partition assignment and
// spreads unkeyed messages round-robin
type keyedBalancer struct {
	hash       kafka.Hash
	roundRobin kafka.RoundRobin
}

// Balance implements kafka.Balancer
func (b *keyedBalancer) Balance(msg kafka.Message, partitions ...int) int {
	if len(msg.Key) > 0 {
		return b.hash.Balance(msg, partitions...)
	}
	return b.roundRobin.Balance(msg, partitions...)
}
