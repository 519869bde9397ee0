// Package models defines the core domain models for conversational flow execution.
package models

import (
	"fmt"
	"time"
)

// FlowStatus represents the lifecycle state of a flow definition.
type FlowStatus string

const (
	FlowStatusDraft       FlowStatus = "draft"       // Editable, not executable
	FlowStatusPublished   FlowStatus = "published"   // Current active, executable
	FlowStatusUnpublished FlowStatus = "unpublished" // Historical, not executable
)

// Edge connects one output port of a node to a target node. An output port
// with no edge is legal: execution halts on that branch.
type Edge struct {
	ID         string `json:"id"`
	SourceNode string `json:"source_node" validate:"required"`
	SourcePort string `json:"source_port" validate:"required"`
	TargetNode string `json:"target_node" validate:"required"`
}

// FlowDefinition is a versioned node-graph defining an automated
// conversation. Published versions are immutable; edits create a new
// version, and in-flight instances stay pinned to the version they started
// on.
type FlowDefinition struct {
	ID          string         `json:"id"`
	Version     int            `json:"version"     validate:"min=1"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Status      FlowStatus     `json:"status"      validate:"required"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	EntryNodes  []string       `json:"entry_nodes"`
	Variables   map[string]any `json:"variables,omitempty"`
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (f *FlowDefinition) NodeByID(id string) *Node {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// EdgeFor resolves the edge wired to (sourceNode, sourcePort). The second
// return is false when the port is unconnected.
func (f *FlowDefinition) EdgeFor(sourceNode, sourcePort string) (*Edge, bool) {
	for _, e := range f.Edges {
		if e.SourceNode == sourceNode && e.SourcePort == sourcePort {
			return e, true
		}
	}

	return nil, false
}

// TriggerNodes returns every trigger node in the graph.
func (f *FlowDefinition) TriggerNodes() []*Node {
	var triggers []*Node

	for _, n := range f.Nodes {
		if n.Kind.IsTrigger() {
			triggers = append(triggers, n)
		}
	}

	return triggers
}

// Validate checks graph-level integrity: edges must reference existing
// nodes, entry nodes must exist, and every node config must decode.
func (f *FlowDefinition) Validate() error {
	for _, e := range f.Edges {
		if f.NodeByID(e.SourceNode) == nil {
			return fmt.Errorf("edge %s: unknown source node %s", e.ID, e.SourceNode)
		}

		if f.NodeByID(e.TargetNode) == nil {
			return fmt.Errorf("edge %s: unknown target node %s", e.ID, e.TargetNode)
		}
	}

	for _, entry := range f.EntryNodes {
		if f.NodeByID(entry) == nil {
			return fmt.Errorf("entry node %s not present in graph", entry)
		}
	}

	for _, n := range f.Nodes {
		if _, err := n.DecodeConfig(); err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
	}

	return nil
}
