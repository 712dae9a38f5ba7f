// Package models defines the core domain models for the visual flow builder.
package models

import "time"

// FlowStatus represents the lifecycle state of one persisted flow version.
type FlowStatus string

const (
	FlowStatusDraft     FlowStatus = "draft"     // Editable, not executable
	FlowStatusPublished FlowStatus = "published" // Current active version, executable
	FlowStatusArchived  FlowStatus = "archived"  // Historical, retained for rollback
)

// VersionTag is a semantic-version string ("0.0.0") stamped on flows and nodes
// so older definitions stay interpretable as the system evolves. Tags never
// decrease once published; a new tag is a new record.
type VersionTag string

func (v VersionTag) String() string {
	return string(v)
}

// Flow is one persisted version of a workflow graph: a single trigger node
// plus action nodes connected by edges. Multiple versions share one FlowID;
// at most one of them is active at a time.
type Flow struct {
	ID               string         `json:"flow_id"`
	VersionID        string         `json:"flow_version_id"`
	Name             string         `json:"name"              validate:"required,min=1"`
	Description      string         `json:"description"`
	Active           bool           `json:"active"`
	Status           FlowStatus     `json:"status"            validate:"required"`
	FlowVersion      VersionTag     `json:"flow_version"`
	InterfaceVersion VersionTag     `json:"interface_version"` // flow-interface compatibility axis
	Nodes            []*Node        `json:"nodes"`
	Edges            []*Edge        `json:"edges"`
	Variables        map[string]any `json:"variables,omitempty"`
	OwnerAccountID   string         `json:"owner_account_id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	PublishedAt      *time.Time     `json:"published_at,omitempty"`
	// ExecutedAt is set the first time the engine runs this version. An
	// executed version is frozen; further edits must create a new version so
	// the audit trail referenced by tasks stays intact.
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// TriggerNode returns the flow's trigger node, or nil when the flow has none.
// A draft may legitimately have no trigger yet.
func (f *Flow) TriggerNode() *Node {
	for _, node := range f.Nodes {
		if node.Trigger {
			return node
		}
	}

	return nil
}

// FindNode returns the node with the given id, or nil.
func (f *Flow) FindNode(nodeID string) *Node {
	for _, node := range f.Nodes {
		if node.ID == nodeID {
			return node
		}
	}

	return nil
}

// NodeIDs returns the ids of all nodes in the flow.
func (f *Flow) NodeIDs() []string {
	ids := make([]string, 0, len(f.Nodes))
	for _, node := range f.Nodes {
		ids = append(ids, node.ID)
	}

	return ids
}

// Immutable reports whether this version may no longer be edited in place.
func (f *Flow) Immutable() bool {
	return f.Status != FlowStatusDraft || f.ExecutedAt != nil
}

// Clone returns a deep copy of the flow. Nodes and edges are copied by value
// so no mutable state is ever shared across flow versions.
func (f *Flow) Clone() *Flow {
	clone := *f

	clone.Nodes = make([]*Node, 0, len(f.Nodes))
	for _, node := range f.Nodes {
		clone.Nodes = append(clone.Nodes, node.Clone())
	}

	clone.Edges = make([]*Edge, 0, len(f.Edges))
	for _, edge := range f.Edges {
		edgeCopy := *edge
		clone.Edges = append(clone.Edges, &edgeCopy)
	}

	clone.Variables = cloneMap(f.Variables)

	if f.PublishedAt != nil {
		publishedAt := *f.PublishedAt
		clone.PublishedAt = &publishedAt
	}

	if f.ExecutedAt != nil {
		executedAt := *f.ExecutedAt
		clone.ExecutedAt = &executedAt
	}

	return &clone
}
