// Package testutil provides test data builders shared by the test suites.
package testutil

import (
	"time"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:     uuid.New().String(),
		Kind:   models.NodeKindSendText,
		Name:   "Test Node",
		Config: map[string]any{"text": "hello"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithKind sets the node kind and config together, since the config must
// always match the kind.
func WithKind(kind models.NodeKind, config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Kind = kind
		n.Config = config
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// CreateTestFlow creates a published flow with the given nodes and edges.
func CreateTestFlow(nodes []*models.Node, edges []*models.Edge, overrides ...func(*models.FlowDefinition)) *models.FlowDefinition {
	now := time.Now().UTC()
	published := now

	flow := &models.FlowDefinition{
		ID:          uuid.New().String(),
		Version:     1,
		Name:        "Test Flow",
		Status:      models.FlowStatusPublished,
		Nodes:       nodes,
		Edges:       edges,
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &published,
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// Edge builds an edge between two ports.
func Edge(sourceNode, sourcePort, targetNode string) *models.Edge {
	return &models.Edge{
		ID:         uuid.New().String(),
		SourceNode: sourceNode,
		SourcePort: sourcePort,
		TargetNode: targetNode,
	}
}

// CreateTestInstance creates a running instance pinned to the flow.
func CreateTestInstance(flow *models.FlowDefinition, contactID string, overrides ...func(*models.ExecutionInstance)) *models.ExecutionInstance {
	now := time.Now().UTC()

	instance := &models.ExecutionInstance{
		ID:          uuid.New().String(),
		FlowID:      flow.ID,
		FlowVersion: flow.Version,
		ContactID:   contactID,
		Status:      models.ExecutionStatusRunning,
		Variables:   map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, override := range overrides {
		override(instance)
	}

	return instance
}
