package events

import (
	"fmt"

	"github.com/google/uuid"
)

// NodeType identifies the kind of graph vertex an event refers to
type NodeType string

const (
	NodeTypeUser         NodeType = "user"
	NodeTypeArticle      NodeType = "article"
	NodeTypeProduct      NodeType = "product"
	NodeTypeProductType  NodeType = "product_type"
	NodeTypeProductGroup NodeType = "product_group"
	NodeTypeColourGroup  NodeType = "colour_group"
	NodeTypeDepartment   NodeType = "department"
	NodeTypeIndexGroup   NodeType = "index_group"
)

// EdgeType identifies the kind of graph relationship an event refers to
type EdgeType string

const (
	EdgeTypePurchased EdgeType = "purchased"
	EdgeTypeBelongsTo EdgeType = "belongs_to"
	EdgeTypeLikes     EdgeType = "likes"
)

// Action is the mutation an event requests
type Action string

const (
	ActionUpsert Action = "UPSERT"
	ActionDelete Action = "DELETE"
)

// NodeEvent describes a change to a single graph vertex. The label is the
// globally unique vertex key.
type NodeEvent struct {
	EventID  string                 `json:"event_id"`
	NodeType NodeType               `json:"node_type"`
	Label    string                 `json:"label"`
	Data     map[string]interface{} `json:"data"`
	Action   Action                 `json:"action"`
}

// EdgeEvent describes a change to a single graph relationship between two
// vertices identified by their labels.
type EdgeEvent struct {
	EventID        string                 `json:"event_id"`
	EdgeType       EdgeType               `json:"edge_type"`
	SourceNodeID   string                 `json:"source_node_id"`
	SourceNodeType NodeType               `json:"source_node_type"`
	TargetNodeID   string                 `json:"target_node_id"`
	TargetNodeType NodeType               `json:"target_node_type"`
	Data           map[string]interface{} `json:"data"`
	Action         Action                 `json:"action"`
}

// NewNodeEvent creates a NodeEvent with a fresh event id
func NewNodeEvent(nodeType NodeType, label string, data map[string]interface{}, action Action) NodeEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return NodeEvent{
		EventID:  uuid.NewString(),
		NodeType: nodeType,
		Label:    label,
		Data:     data,
		Action:   action,
	}
}

// NewEdgeEvent creates an EdgeEvent with a fresh event id
func NewEdgeEvent(edgeType EdgeType, sourceID string, sourceType NodeType, targetID string, targetType NodeType, data map[string]interface{}, action Action) EdgeEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return EdgeEvent{
		EventID:        uuid.NewString(),
		EdgeType:       edgeType,
		SourceNodeID:   sourceID,
		SourceNodeType: sourceType,
		TargetNodeID:   targetID,
		TargetNodeType: targetType,
		Data:           data,
		Action:         action,
	}
}

// Validate checks that the event carries a usable key and action
func (e NodeEvent) Validate() error {
	if e.Label == "" {
		return fmt.Errorf("node event %s has empty label", e.EventID)
	}
	if e.Action != ActionUpsert && e.Action != ActionDelete {
		return fmt.Errorf("node event %s has invalid action %q", e.EventID, e.Action)
	}
	return nil
}

// Validate checks that the event carries usable endpoint keys and action
func (e EdgeEvent) Validate() error {
	if e.SourceNodeID == "" || e.TargetNodeID == "" {
		return fmt.Errorf("edge event %s has empty endpoint id", e.EventID)
	}
	if e.Action != ActionUpsert && e.Action != ActionDelete {
		return fmt.Errorf("edge event %s has invalid action %q", e.EventID, e.Action)
	}
	return nil
}
