package graph

import (
	"fmt"
	"strings"

	"graphpipe/internal/events"
)

// Query is a parameterized Cypher statement ready for execution. Values
// always travel as parameters; only identifiers (labels, relationship types)
// are embedded in the text, and those go through escapeIdentifier in exactly
// one place.
type Query struct {
	Text   string
	Params map[string]interface{}
}

// keyProperty is the vertex property holding the globally unique node key
const keyProperty = "label"

// reservedKeys never make it into the stored property map; they collide with
// identity properties managed by the upsert queries themselves.
var reservedKeys = []string{"id", "partitionKey", keyProperty}

// UpsertNode builds the create-or-update statement for a node event. MERGE on
// the key property gives coalesce semantics: an existing vertex is updated in
// place, a missing one is created with its identity properties first.
func UpsertNode(event events.NodeEvent) Query {
	props := filterProperties(event.Data, reservedKeys...)
	text := fmt.Sprintf(
		"MERGE (n:%s {%s: $key}) ON CREATE SET n.node_type = $nodeType SET n += $props",
		escapeIdentifier(string(event.NodeType)), keyProperty,
	)
	return Query{
		Text: text,
		Params: map[string]interface{}{
			"key":      event.Label,
			"nodeType": string(event.NodeType),
			"props":    props,
		},
	}
}

// EnsureNode builds the statement creating a minimal vertex if absent. Used
// for edge endpoints so the store never holds a dangling edge.
func EnsureNode(id string, nodeType events.NodeType) Query {
	text := fmt.Sprintf(
		"MERGE (n:%s {%s: $key}) ON CREATE SET n.node_type = $nodeType",
		escapeIdentifier(string(nodeType)), keyProperty,
	)
	return Query{
		Text: text,
		Params: map[string]interface{}{
			"key":      id,
			"nodeType": string(nodeType),
		},
	}
}

// DeleteNode builds the unconditional removal statement for a node key.
// Matching is by key property alone so a delete works whatever label the
// vertex was created under; deleting a missing vertex matches nothing.
func DeleteNode(label string) Query {
	return Query{
		Text:   fmt.Sprintf("MATCH (n {%s: $key}) DETACH DELETE n", keyProperty),
		Params: map[string]interface{}{"key": label},
	}
}

// UpsertEdge builds the create-or-update statement for the relationship
// itself. Endpoints must already exist; MERGE keys the edge by
// (source, target, type) so at most one edge of a given type exists between
// any ordered pair.
func UpsertEdge(event events.EdgeEvent) Query {
	props := filterProperties(event.Data)
	text := fmt.Sprintf(
		"MATCH (src {%s: $sourceKey}) MATCH (dst {%s: $targetKey}) MERGE (src)-[r:%s]->(dst) SET r += $props",
		keyProperty, keyProperty, escapeIdentifier(string(event.EdgeType)),
	)
	return Query{
		Text: text,
		Params: map[string]interface{}{
			"sourceKey": event.SourceNodeID,
			"targetKey": event.TargetNodeID,
			"props":     props,
		},
	}
}

// DeleteEdge builds the unconditional removal statement for a relationship
func DeleteEdge(event events.EdgeEvent) Query {
	text := fmt.Sprintf(
		"MATCH (src {%s: $sourceKey})-[r:%s]->(dst {%s: $targetKey}) DELETE r",
		keyProperty, escapeIdentifier(string(event.EdgeType)), keyProperty,
	)
	return Query{
		Text: text,
		Params: map[string]interface{}{
			"sourceKey": event.SourceNodeID,
			"targetKey": event.TargetNodeID,
		},
	}
}

// escapeIdentifier neutralizes quoting characters in a user-controlled string
// embedded as a Cypher identifier. Backticks are doubled and the whole
// identifier is backtick-quoted, so a value like O'Brien (or one containing
// backticks) cannot break out of the identifier position.
func escapeIdentifier(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// filterProperties copies a property map, dropping nil values and excluded
// keys. Null properties are skipped, never written.
func filterProperties(data map[string]interface{}, exclude ...string) map[string]interface{} {
	props := make(map[string]interface{}, len(data))
	for key, value := range data {
		if value == nil {
			continue
		}
		if containsKey(exclude, key) {
			continue
		}
		props[key] = value
	}
	return props
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
