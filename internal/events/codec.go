package events

import (
	"encoding/json"

	pkgerrors "graphpipe/pkg/errors"
)

// Kind discriminates the two event shapes on the wire
type Kind int

const (
	KindUnknown Kind = iota
	KindNode
	KindEdge
)

// Decoded is the result of decoding one wire payload. Exactly one of Node or
// Edge is populated, according to Kind.
type Decoded struct {
	Kind Kind
	Node NodeEvent
	Edge EdgeEvent
}

// Decode parses a single JSON event payload. The shape is determined by which
// discriminator field is present: node_type means NodeEvent, edge_type means
// EdgeEvent. A payload with neither is an unknown event.
func Decode(payload []byte) (Decoded, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Decoded{}, pkgerrors.NewEventDecodeFailed(err)
	}

	if _, ok := probe["node_type"]; ok {
		var node NodeEvent
		if err := json.Unmarshal(payload, &node); err != nil {
			return Decoded{}, pkgerrors.NewEventDecodeFailed(err)
		}
		return Decoded{Kind: KindNode, Node: node}, nil
	}

	if _, ok := probe["edge_type"]; ok {
		var edge EdgeEvent
		if err := json.Unmarshal(payload, &edge); err != nil {
			return Decoded{}, pkgerrors.NewEventDecodeFailed(err)
		}
		return Decoded{Kind: KindEdge, Edge: edge}, nil
	}

	return Decoded{Kind: KindUnknown}, pkgerrors.ErrUnknownEvent
}

// Encode marshals a NodeEvent or EdgeEvent to its wire form
func Encode(event interface{}) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, pkgerrors.NewEventDecodeFailed(err)
	}
	return data, nil
}
