// Package registry describes the closed catalog of node kinds: their
// category, output ports and config schemas. The web layer uses it to
// validate flow definitions on save and to expose the catalog to editors.
package registry

import (
	"fmt"
	"strings"

	"github.com/flowzap/flowzap/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// Category groups node kinds for the editor palette.
type Category string

const (
	CategoryTrigger Category = "trigger"
	CategoryAction  Category = "action"
	CategoryControl Category = "control"
	CategoryData    Category = "data"
	CategoryWait    Category = "wait"
	CategoryCall    Category = "call"
)

// Descriptor is the catalog entry for one node kind.
type Descriptor struct {
	Kind         models.NodeKind `json:"kind"`
	Category     Category        `json:"category"`
	Description  string          `json:"description"`
	OutputPorts  []string        `json:"output_ports"`
	ConfigSchema map[string]any  `json:"config_schema"`
}

type Registry struct {
	descriptors map[models.NodeKind]Descriptor
}

// NewRegistry builds the catalog with every supported node kind
// registered.
func NewRegistry() *Registry {
	r := &Registry{descriptors: make(map[models.NodeKind]Descriptor)}

	for _, d := range allDescriptors() {
		r.descriptors[d.Kind] = d
	}

	return r
}

// Descriptor returns the catalog entry for a kind.
func (r *Registry) Descriptor(kind models.NodeKind) (Descriptor, bool) {
	d, ok := r.descriptors[kind]

	return d, ok
}

// Descriptors returns the full catalog.
func (r *Registry) Descriptors() []Descriptor {
	list := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		list = append(list, d)
	}

	return list
}

// ValidateNode checks the node kind is known and its raw config satisfies
// the kind's JSON schema. Typed decoding still happens in DecodeConfig;
// this produces editor-friendly structural errors earlier.
func (r *Registry) ValidateNode(node *models.Node) error {
	descriptor, ok := r.descriptors[node.Kind]
	if !ok {
		return fmt.Errorf("node %s: unknown kind %q", node.ID, node.Kind)
	}

	schemaLoader := gojsonschema.NewGoLoader(descriptor.ConfigSchema)
	dataLoader := gojsonschema.NewGoLoader(node.Config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("node %s: schema validation failed: %w", node.ID, err)
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("node %s (%s): %s", node.ID, node.Kind, strings.Join(details, "; "))
	}

	return nil
}

// ValidateFlow validates every node in the definition against the catalog
// plus the graph-level checks.
func (r *Registry) ValidateFlow(flow *models.FlowDefinition) error {
	for _, node := range flow.Nodes {
		if err := r.ValidateNode(node); err != nil {
			return err
		}
	}

	return flow.Validate()
}
