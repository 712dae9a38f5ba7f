package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/flowdeck/flowdeck/pkg/identity"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/version"
	"github.com/google/uuid"
)

// Builder performs all graph-editing operations. It never mutates its input:
// each operation deep-copies the flow, applies the change, and returns the
// new snapshot. Versions that have been published or executed reject edits.
type Builder struct {
	versions *version.Registry
}

// NewBuilder creates a builder stamping version tags from the given registry.
func NewBuilder(versions *version.Registry) *Builder {
	return &Builder{versions: versions}
}

// CreateFlow produces an empty draft flow with no trigger.
func (b *Builder) CreateFlow(name, description string) (*models.Flow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Rule: "required", Message: "flow name cannot be empty"}
	}

	now := time.Now().UTC()

	return &models.Flow{
		ID:               uuid.New().String(),
		VersionID:        uuid.New().String(),
		Name:             name,
		Description:      strings.TrimSpace(description),
		Active:           false,
		Status:           models.FlowStatusDraft,
		FlowVersion:      version.DefaultTag,
		InterfaceVersion: b.versions.Current(version.AxisFlow),
		Nodes:            []*models.Node{},
		Edges:            []*models.Edge{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// AddNode copies the node definition into the flow at the given position.
// The definition is never aliased: templates and registry definitions stay
// independent of the inserted node. The node id is resolved against the
// flow's current id set, and a second trigger node is rejected.
func (b *Builder) AddNode(flow *models.Flow, definition *models.Node, pos models.Position) (*models.Flow, error) {
	if flow.Immutable() {
		return nil, ErrVersionImmutable
	}

	if definition.Trigger && flow.TriggerNode() != nil {
		return nil, fmt.Errorf("cannot add %q: %w", definition.Type, ErrDuplicateTrigger)
	}

	next := flow.Clone()

	node := definition.Clone()
	node.ID = identity.ResolveID(next.NodeIDs(), plannedID(definition))
	node.Presentation.Position = pos
	b.stampVersions(node)

	if node.Config == nil {
		node.Config = make(map[string]any)
	}

	next.Nodes = append(next.Nodes, node)
	next.UpdatedAt = time.Now().UTC()

	return next, nil
}

// RemoveNode removes the node and every edge referencing it as source or
// target. Removing the trigger node is allowed: the draft becomes unrunnable
// until a new trigger is added, which ValidateForExecution reports.
func (b *Builder) RemoveNode(flow *models.Flow, nodeID string) (*models.Flow, error) {
	if flow.Immutable() {
		return nil, ErrVersionImmutable
	}

	if flow.FindNode(nodeID) == nil {
		return nil, fmt.Errorf("remove %q: %w", nodeID, ErrUnknownNode)
	}

	next := flow.Clone()

	nodes := next.Nodes[:0]
	for _, node := range next.Nodes {
		if node.ID != nodeID {
			nodes = append(nodes, node)
		}
	}

	next.Nodes = nodes

	edges := next.Edges[:0]
	for _, edge := range next.Edges {
		if edge.Source != nodeID && edge.Target != nodeID {
			edges = append(edges, edge)
		}
	}

	next.Edges = edges
	next.UpdatedAt = time.Now().UTC()

	return next, nil
}

// Handles names the connection points an edge attaches to.
type Handles struct {
	Source string
	Target string
}

// Connect adds a directed edge between two nodes of the flow. Unknown
// endpoints and edges that would close a cycle are rejected before anything
// is inserted.
func (b *Builder) Connect(flow *models.Flow, sourceID, targetID string, handles Handles) (*models.Flow, error) {
	if flow.Immutable() {
		return nil, ErrVersionImmutable
	}

	if flow.FindNode(sourceID) == nil {
		return nil, fmt.Errorf("connect source %q: %w", sourceID, ErrUnknownNode)
	}

	if flow.FindNode(targetID) == nil {
		return nil, fmt.Errorf("connect target %q: %w", targetID, ErrUnknownNode)
	}

	// The edge closes a cycle iff the source is already reachable from the
	// target. Self-loops fall out of the same check.
	if sourceID == targetID || reachable(flow.Edges, targetID, sourceID) {
		return nil, fmt.Errorf("connect %q -> %q: %w", sourceID, targetID, ErrCycle)
	}

	next := flow.Clone()
	next.Edges = append(next.Edges, &models.Edge{
		ID:           uuid.New().String(),
		Source:       sourceID,
		Target:       targetID,
		SourceHandle: handles.Source,
		TargetHandle: handles.Target,
	})
	next.UpdatedAt = time.Now().UTC()

	return next, nil
}

// Disconnect removes an edge by id.
func (b *Builder) Disconnect(flow *models.Flow, edgeID string) (*models.Flow, error) {
	if flow.Immutable() {
		return nil, ErrVersionImmutable
	}

	found := false

	next := flow.Clone()

	edges := next.Edges[:0]
	for _, edge := range next.Edges {
		if edge.ID == edgeID {
			found = true

			continue
		}

		edges = append(edges, edge)
	}

	if !found {
		return nil, fmt.Errorf("disconnect %q: %w", edgeID, ErrUnknownEdge)
	}

	next.Edges = edges
	next.UpdatedAt = time.Now().UTC()

	return next, nil
}

// CreateVersion snapshots the flow as a new draft version under the same
// FlowID. This is the only way to edit a version that has been published or
// executed; history is never mutated in place.
func (b *Builder) CreateVersion(flow *models.Flow) *models.Flow {
	now := time.Now().UTC()

	next := flow.Clone()
	next.VersionID = uuid.New().String()
	next.Status = models.FlowStatusDraft
	next.Active = false
	next.PublishedAt = nil
	next.ExecutedAt = nil
	next.CreatedAt = now
	next.UpdatedAt = now

	return next
}

func (b *Builder) stampVersions(node *models.Node) {
	if node.ExtensionVersion == "" {
		node.ExtensionVersion = b.versions.Current(version.AxisExtension)
	}

	if node.Trigger && node.TriggerVersion == "" {
		node.TriggerVersion = b.versions.Current(version.AxisTrigger)
	}

	if !node.Trigger && node.ActionVersion == "" {
		node.ActionVersion = b.versions.Current(version.AxisAction)
	}
}

// plannedID picks the id the definition asks for, falling back to a slug of
// its label and finally its type.
func plannedID(definition *models.Node) string {
	if definition.ID != "" {
		return definition.ID
	}

	if definition.Label != "" {
		return slugify(definition.Label)
	}

	return slugify(definition.Type)
}

func slugify(s string) string {
	var sb strings.Builder

	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}

	return strings.Trim(sb.String(), "_")
}

// reachable reports whether target can be reached from start following the
// directed edge set.
func reachable(edges []*models.Edge, start, target string) bool {
	adjacency := make(map[string][]string, len(edges))
	for _, edge := range edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == target {
			return true
		}

		for _, next := range adjacency[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	return false
}
