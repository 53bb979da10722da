package processor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"graphpipe/internal/eventlog"
	"graphpipe/internal/events"
	"graphpipe/pkg/logger"
)

// DefaultNodeBatchSize is how many node events accumulate before a flush
const DefaultNodeBatchSize = 50

// GraphEngine is the mutation surface the processor drives. *graph.Engine is
// the production implementation.
type GraphEngine interface {
	ApplyNode(ctx context.Context, event events.NodeEvent) error
	ApplyNodeBatch(ctx context.Context, batch []events.NodeEvent) error
	ApplyEdge(ctx context.Context, event events.EdgeEvent) error
	Close(ctx context.Context) error
}

// Processor orchestrates the consumer and the graph engine. Node events are
// buffered and applied in batches for throughput; the buffer is always
// flushed before an edge is applied, so an edge never races ahead of the
// nodes it references.
type Processor struct {
	engine    GraphEngine
	consumer  *eventlog.Consumer
	batchSize int
	logger    *zap.Logger

	mu     sync.Mutex
	buffer []events.NodeEvent
}

// New creates a processor and registers its handlers on the consumer
func New(engine GraphEngine, consumer *eventlog.Consumer, batchSize int) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultNodeBatchSize
	}

	p := &Processor{
		engine:    engine,
		consumer:  consumer,
		batchSize: batchSize,
		logger:    logger.Get(),
	}

	if consumer != nil {
		consumer.
			SetNodeHandler(p.HandleNode).
			SetEdgeHandler(p.HandleEdge).
			SetBatchCompleteHandler(p.Flush)
	}

	return p
}

// Run blocks consuming the log until the context is cancelled, then flushes
// whatever is still buffered and closes the engine
func (p *Processor) Run(ctx context.Context, start eventlog.StartPosition, resume bool) error {
	runErr := p.consumer.Run(ctx, start, resume)

	shutdownCtx := context.WithoutCancel(ctx)
	if err := p.Flush(shutdownCtx); err != nil {
		p.logger.Error("Failed to flush node buffer during shutdown", zap.Error(err))
	}
	if err := p.engine.Close(shutdownCtx); err != nil {
		p.logger.Warn("Error closing graph engine", zap.Error(err))
	}

	return runErr
}

// HandleNode buffers a node event, flushing when the batch bound is reached
func (p *Processor) HandleNode(ctx context.Context, event events.NodeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, event)
	if len(p.buffer) >= p.batchSize {
		return p.flushLocked(ctx)
	}
	return nil
}

// HandleEdge flushes pending node events first, then applies the edge. The
// flush upholds the ordering invariant: an edge's endpoints must have been
// applied before the edge is created.
func (p *Processor) HandleEdge(ctx context.Context, event events.EdgeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.flushLocked(ctx); err != nil {
		return err
	}
	return p.engine.ApplyEdge(ctx, event)
}

// Flush applies all buffered node events. Invoked by the consumer after each
// delivered batch so nothing stays pending across a checkpoint boundary.
func (p *Processor) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

// flushLocked applies the buffer batch-wise, falling back to per-event
// application when the batch fails, so one bad event does not lose the rest.
// The buffer is cleared regardless: at-least-once delivery means a fatal
// failure is retried by replay, not by re-flushing stale state.
func (p *Processor) flushLocked(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	batch := p.buffer
	p.buffer = nil

	if err := p.engine.ApplyNodeBatch(ctx, batch); err != nil {
		p.logger.Warn("Node batch failed, falling back to per-event application",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		for _, event := range batch {
			if err := p.engine.ApplyNode(ctx, event); err != nil {
				p.logger.Error("Failed to apply node event",
					zap.String("event_id", event.EventID),
					zap.Error(err),
				)
			}
		}
		return nil
	}

	p.logger.Debug("Flushed node batch", zap.Int("batch_size", len(batch)))
	return nil
}
