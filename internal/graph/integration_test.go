package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphpipe/internal/events"
)

// Integration tests require a running Neo4j instance.
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables.

func newIntegrationEngine(t *testing.T) (*Engine, neo4j.DriverWithContext) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	uri := envOr("NEO4J_URI", "bolt://localhost:7687")
	user := envOr("NEO4J_USER", "neo4j")
	password := envOr("NEO4J_PASSWORD", "password")

	conn := NewConnection(uri, envOr("NEO4J_DATABASE", "neo4j"), StaticCredentials{
		Username: user,
		Password: password,
	})
	engine := NewEngine(conn)

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = neo4j.ExecuteQuery(ctx, driver,
			"MATCH (n) WHERE n.label STARTS WITH $prefix DETACH DELETE n",
			map[string]interface{}{"prefix": "it-"},
			neo4j.EagerResultTransformer,
		)
		_ = driver.Close(ctx)
		_ = engine.Close(ctx)
	})
	return engine, driver
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func countVertices(t *testing.T, driver neo4j.DriverWithContext, label string) int64 {
	t.Helper()
	result, err := neo4j.ExecuteQuery(context.Background(), driver,
		"MATCH (n {label: $key}) RETURN count(n) AS c",
		map[string]interface{}{"key": label},
		neo4j.EagerResultTransformer,
	)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	c, _ := result.Records[0].Get("c")
	return c.(int64)
}

func TestIntegration_UpsertNodeIsIdempotent(t *testing.T) {
	engine, driver := newIntegrationEngine(t)
	ctx := context.Background()

	key := "it-node-" + time.Now().Format("20060102150405")
	event := events.NewNodeEvent(events.NodeTypeArticle, key, map[string]interface{}{"name": "Test Article"}, events.ActionUpsert)

	require.NoError(t, engine.ApplyNode(ctx, event))
	require.NoError(t, engine.ApplyNode(ctx, event))

	assert.Equal(t, int64(1), countVertices(t, driver, key))
}

func TestIntegration_EdgeEndpointsAlwaysExist(t *testing.T) {
	engine, driver := newIntegrationEngine(t)
	ctx := context.Background()

	stamp := time.Now().Format("20060102150405")
	source := "it-src-" + stamp
	target := "it-dst-" + stamp

	// Neither endpoint was created beforehand
	event := events.NewEdgeEvent(events.EdgeTypeLikes, source, events.NodeTypeUser, target, events.NodeTypeArticle, nil, events.ActionUpsert)
	require.NoError(t, engine.ApplyEdge(ctx, event))

	assert.Equal(t, int64(1), countVertices(t, driver, source))
	assert.Equal(t, int64(1), countVertices(t, driver, target))

	// Replay creates no duplicate edge
	require.NoError(t, engine.ApplyEdge(ctx, event))

	result, err := neo4j.ExecuteQuery(ctx, driver,
		"MATCH ({label: $src})-[r:likes]->({label: $dst}) RETURN count(r) AS c",
		map[string]interface{}{"src": source, "dst": target},
		neo4j.EagerResultTransformer,
	)
	require.NoError(t, err)
	c, _ := result.Records[0].Get("c")
	assert.Equal(t, int64(1), c)
}

func TestIntegration_QuotedLabelRoundTrips(t *testing.T) {
	engine, driver := newIntegrationEngine(t)
	ctx := context.Background()

	key := "it-O'Brien-" + time.Now().Format("20060102150405")
	event := events.NewNodeEvent(events.NodeTypeUser, key, map[string]interface{}{"name": "O'Brien"}, events.ActionUpsert)

	require.NoError(t, engine.ApplyNode(ctx, event))
	assert.Equal(t, int64(1), countVertices(t, driver, key))
}

func TestIntegration_DeleteMissingNodeIsNoOp(t *testing.T) {
	engine, _ := newIntegrationEngine(t)
	ctx := context.Background()

	event := events.NewNodeEvent(events.NodeTypeUser, "it-never-created", nil, events.ActionDelete)
	assert.NoError(t, engine.ApplyNode(ctx, event))
}
