// Package importer turns an exported flow document back into a flow owned by
// the importing account. Import is all-or-nothing: the document is decoded,
// checked for compatibility, re-identified and validated before anything is
// returned, and the first failure aborts the whole import.
package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/flowdeck/flowdeck/pkg/graph"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/version"
)

var ErrEmptyDocument = errors.New("flow document is empty")

type Importer struct {
	logger   *slog.Logger
	versions *version.Registry
	builder  *graph.Builder
	validate *validator.Validate
}

func New(logger *slog.Logger, versions *version.Registry) *Importer {
	return &Importer{
		logger:   logger.With("module", "importer"),
		versions: versions,
		builder:  graph.NewBuilder(versions),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Import decodes the document and returns a fresh draft flow owned by the
// account. The flow lands under a fresh flow and version identity, so node
// ids survive the round trip unchanged; a document that reuses a node id is
// rejected rather than silently rewired.
func (i *Importer) Import(data []byte, ownerAccountID string) (*models.Flow, error) {
	flow, err := i.decode(data)
	if err != nil {
		return nil, err
	}

	if err := i.versions.CheckFlow(flow); err != nil {
		return nil, fmt.Errorf("incompatible flow document: %w", err)
	}

	for _, node := range flow.Nodes {
		if err := i.validate.Struct(node); err != nil {
			return nil, &graph.ValidationError{
				Field:   "nodes",
				Rule:    "struct",
				Message: fmt.Sprintf("node %q is malformed: %v", node.ID, err),
			}
		}
	}

	if err := i.reidentify(flow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	flow.ID = uuid.New().String()
	flow.VersionID = uuid.New().String()
	flow.Status = models.FlowStatusDraft
	flow.Active = false
	flow.OwnerAccountID = ownerAccountID
	flow.CreatedAt = now
	flow.UpdatedAt = now
	flow.PublishedAt = nil
	flow.ExecutedAt = nil

	if err := i.builder.ValidateForExecution(flow); err != nil {
		var validationErrors graph.ValidationErrors
		if errors.As(err, &validationErrors) {
			return nil, validationErrors
		}

		return nil, err
	}

	i.logger.Info("Imported flow",
		"flow_id", flow.ID,
		"nodes", len(flow.Nodes),
		"edges", len(flow.Edges))

	return flow, nil
}

// decode parses the document strictly: unknown fields are an error so silent
// drift between exporter and importer surfaces immediately.
func (i *Importer) decode(data []byte) (*models.Flow, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var flow models.Flow
	if err := decoder.Decode(&flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow document: %w", err)
	}

	if flow.Name == "" {
		return nil, &graph.ValidationError{Field: "name", Rule: "required", Message: "flow name is required"}
	}

	return &flow, nil
}

// reidentify checks the document's node id set and gives every edge a fresh
// identity. An export never contains two nodes with one id, so a duplicated
// id marks a hand-edited document; the edges naming it are ambiguous and the
// import is rejected instead of guessing a rewire. Unique ids are kept as
// they are, which keeps a round-tripped export's topology intact. Collisions
// with other flows cannot happen because the import lands in a fresh flow;
// suffix resolution belongs to the builder, where nodes join an existing
// id set.
func (i *Importer) reidentify(flow *models.Flow) error {
	seen := make(map[string]struct{}, len(flow.Nodes))

	for _, node := range flow.Nodes {
		if node.ID == "" {
			return &graph.ValidationError{Field: "nodes", Rule: "required", Message: "node id is required"}
		}

		if _, dup := seen[node.ID]; dup {
			return &graph.ValidationError{
				Field:   "nodes",
				Rule:    "unique",
				Message: fmt.Sprintf("node id %q is used by more than one node", node.ID),
			}
		}

		seen[node.ID] = struct{}{}
	}

	for _, edge := range flow.Edges {
		edge.ID = uuid.New().String()
	}

	return nil
}
