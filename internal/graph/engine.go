package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"graphpipe/internal/events"
	"graphpipe/pkg/errors"
	"graphpipe/pkg/logger"
)

// Retry configuration for throttled mutations
const (
	defaultMaxRetries = 5
	baseDelay         = 1 * time.Second
	maxDelay          = 32 * time.Second
)

// Runner executes parameterized statements against the graph store and owns
// the underlying connection. *Connection is the production implementation;
// tests substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, query string, params map[string]interface{}) error
	Invalidate(ctx context.Context)
	Close(ctx context.Context) error
}

// Engine translates node and edge events into idempotent graph mutations and
// executes them with retry on throttling and credential refresh on
// authorization failures.
type Engine struct {
	runner     Runner
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithMaxRetries overrides the retry cap for throttled and auth-failed
// mutations
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// withSleep substitutes the delay function; used by tests to avoid real
// backoff waits
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// NewEngine creates an engine over the given runner
func NewEngine(runner Runner, opts ...Option) *Engine {
	e := &Engine{
		runner:     runner,
		maxRetries: defaultMaxRetries,
		sleep:      sleepContext,
		logger:     logger.Get(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyNode applies a single node event as an idempotent mutation
func (e *Engine) ApplyNode(ctx context.Context, event events.NodeEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	switch event.Action {
	case events.ActionUpsert:
		return e.execute(ctx, UpsertNode(event))
	case events.ActionDelete:
		return e.execute(ctx, DeleteNode(event.Label))
	default:
		return fmt.Errorf("unsupported action %q for node event %s", event.Action, event.EventID)
	}
}

// ApplyNodeBatch applies a batch of node events. Upserts run first in event
// order, then deletes (typically far fewer). The first failure aborts the
// batch; the caller falls back to per-event application so one bad event does
// not lose the rest.
func (e *Engine) ApplyNodeBatch(ctx context.Context, batch []events.NodeEvent) error {
	if len(batch) == 0 {
		return nil
	}

	var deletes []events.NodeEvent
	for _, event := range batch {
		if event.Action == events.ActionDelete {
			deletes = append(deletes, event)
			continue
		}
		if err := e.ApplyNode(ctx, event); err != nil {
			return fmt.Errorf("batch upsert failed at event %s: %w", event.EventID, err)
		}
	}

	for _, event := range deletes {
		if err := e.ApplyNode(ctx, event); err != nil {
			return fmt.Errorf("batch delete failed at event %s: %w", event.EventID, err)
		}
	}

	return nil
}

// ApplyEdge applies a single edge event. For upserts both endpoint vertices
// are created first if absent, so the store never holds a dangling edge.
func (e *Engine) ApplyEdge(ctx context.Context, event events.EdgeEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	switch event.Action {
	case events.ActionUpsert:
		if err := e.execute(ctx, EnsureNode(event.SourceNodeID, event.SourceNodeType)); err != nil {
			return fmt.Errorf("failed to ensure source vertex %s: %w", event.SourceNodeID, err)
		}
		if err := e.execute(ctx, EnsureNode(event.TargetNodeID, event.TargetNodeType)); err != nil {
			return fmt.Errorf("failed to ensure target vertex %s: %w", event.TargetNodeID, err)
		}
		return e.execute(ctx, UpsertEdge(event))
	case events.ActionDelete:
		return e.execute(ctx, DeleteEdge(event))
	default:
		return fmt.Errorf("unsupported action %q for edge event %s", event.Action, event.EventID)
	}
}

// Close releases the graph store connection
func (e *Engine) Close(ctx context.Context) error {
	return e.runner.Close(ctx)
}

// execute runs one statement with the retry policy: exponential backoff with
// jitter on throttling, connection rebuild and immediate retry on
// authorization failures. Auth retries skip the backoff clock but still count
// against the retry cap.
func (e *Engine) execute(ctx context.Context, query Query) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay
	bo.MaxInterval = maxDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		err := e.runner.Run(ctx, query.Text, query.Params)
		if err == nil {
			return nil
		}

		if isAuthError(err) {
			lastErr = err
			e.logger.Warn("Authorization failure, rebuilding connection",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			e.runner.Invalidate(ctx)
			continue
		}

		if isRateLimited(err) {
			lastErr = err
			if attempt < e.maxRetries-1 {
				delay := bo.NextBackOff()
				e.logger.Warn("Rate limited, retrying with backoff",
					zap.Duration("delay", delay),
					zap.Int("attempt", attempt+1),
					zap.Int("max_retries", e.maxRetries),
				)
				if err := e.sleep(ctx, delay); err != nil {
					return err
				}
			}
			continue
		}

		return errors.NewGraphQueryFailed(query.Text, err)
	}

	return errors.NewGraphRetriesExhausted(e.maxRetries, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
