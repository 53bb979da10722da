package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphpipe/internal/events"
)

// mockEngine records every mutation in call order
type mockEngine struct {
	ops       []string
	batchErr  error
	nodeErr   error
	edgeErr   error
	closed    bool
	nodeCalls int
}

func (m *mockEngine) ApplyNode(_ context.Context, event events.NodeEvent) error {
	m.nodeCalls++
	if m.nodeErr != nil {
		return m.nodeErr
	}
	m.ops = append(m.ops, "node:"+event.Label)
	return nil
}

func (m *mockEngine) ApplyNodeBatch(_ context.Context, batch []events.NodeEvent) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	for _, event := range batch {
		m.ops = append(m.ops, fmt.Sprintf("batch[%d]:%s", len(batch), event.Label))
	}
	return nil
}

func (m *mockEngine) ApplyEdge(_ context.Context, event events.EdgeEvent) error {
	if m.edgeErr != nil {
		return m.edgeErr
	}
	m.ops = append(m.ops, "edge:"+event.SourceNodeID+"->"+event.TargetNodeID)
	return nil
}

func (m *mockEngine) Close(_ context.Context) error {
	m.closed = true
	return nil
}

func nodeEvent(label string) events.NodeEvent {
	return events.NewNodeEvent(events.NodeTypeUser, label, nil, events.ActionUpsert)
}

func edgeEvent(source, target string) events.EdgeEvent {
	return events.NewEdgeEvent(events.EdgeTypeLikes, source, events.NodeTypeUser, target, events.NodeTypeArticle, nil, events.ActionUpsert)
}

func TestProcessor_EdgeFlushesNodeBufferFirst(t *testing.T) {
	engine := &mockEngine{}
	p := New(engine, nil, 50)
	ctx := context.Background()

	require.NoError(t, p.HandleNode(ctx, nodeEvent("A")))
	require.NoError(t, p.HandleNode(ctx, nodeEvent("B")))
	require.NoError(t, p.HandleEdge(ctx, edgeEvent("A", "B")))

	// Both node mutations land before the edge mutation
	require.Len(t, engine.ops, 3)
	assert.Equal(t, "batch[2]:A", engine.ops[0])
	assert.Equal(t, "batch[2]:B", engine.ops[1])
	assert.Equal(t, "edge:A->B", engine.ops[2])
}

func TestProcessor_FlushesWhenBatchBoundReached(t *testing.T) {
	engine := &mockEngine{}
	p := New(engine, nil, 3)
	ctx := context.Background()

	require.NoError(t, p.HandleNode(ctx, nodeEvent("A")))
	require.NoError(t, p.HandleNode(ctx, nodeEvent("B")))
	assert.Empty(t, engine.ops, "buffer below bound should not flush")

	require.NoError(t, p.HandleNode(ctx, nodeEvent("C")))
	assert.Len(t, engine.ops, 3, "reaching the bound flushes the batch")

	require.NoError(t, p.HandleNode(ctx, nodeEvent("D")))
	assert.Len(t, engine.ops, 3, "new buffer accumulates again")
}

func TestProcessor_BatchFailureFallsBackPerEvent(t *testing.T) {
	engine := &mockEngine{batchErr: errors.New("batch exploded")}
	p := New(engine, nil, 50)
	ctx := context.Background()

	require.NoError(t, p.HandleNode(ctx, nodeEvent("A")))
	require.NoError(t, p.HandleNode(ctx, nodeEvent("B")))
	require.NoError(t, p.Flush(ctx))

	// The batch path failed, so each event was applied individually
	assert.Equal(t, []string{"node:A", "node:B"}, engine.ops)
}

func TestProcessor_PerEventFailureDoesNotLoseRestOfBatch(t *testing.T) {
	engine := &mockEngine{batchErr: errors.New("batch exploded"), nodeErr: errors.New("bad event")}
	p := New(engine, nil, 50)
	ctx := context.Background()

	require.NoError(t, p.HandleNode(ctx, nodeEvent("A")))
	require.NoError(t, p.HandleNode(ctx, nodeEvent("B")))

	// Individual failures are logged, not fatal; the flush still completes
	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, 2, engine.nodeCalls)
}

func TestProcessor_FlushOnBatchComplete(t *testing.T) {
	engine := &mockEngine{}
	p := New(engine, nil, 50)
	ctx := context.Background()

	require.NoError(t, p.HandleNode(ctx, nodeEvent("A")))
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, []string{"batch[1]:A"}, engine.ops)

	// An empty buffer flush is a no-op
	require.NoError(t, p.Flush(ctx))
	assert.Len(t, engine.ops, 1)
}

func TestProcessor_EdgeErrorPropagates(t *testing.T) {
	engine := &mockEngine{edgeErr: errors.New("store down")}
	p := New(engine, nil, 50)

	err := p.HandleEdge(context.Background(), edgeEvent("A", "B"))
	require.Error(t, err)
}

func TestProcessor_ReplayIsHarmless(t *testing.T) {
	engine := &mockEngine{}
	p := New(engine, nil, 50)
	ctx := context.Background()

	deliver := func() {
		require.NoError(t, p.HandleNode(ctx, nodeEvent("A")))
		require.NoError(t, p.HandleEdge(ctx, edgeEvent("A", "B")))
		require.NoError(t, p.Flush(ctx))
	}

	// Simulated crash before checkpoint save: the same batch arrives twice
	deliver()
	deliver()

	assert.Equal(t, []string{
		"batch[1]:A", "edge:A->B",
		"batch[1]:A", "edge:A->B",
	}, engine.ops)
}
