// Package web provides the HTTP handlers and request/response types of the
// flow builder API.
package web

import (
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/registry"
)

// CreateFlowRequest is the body for creating a new flow.
type CreateFlowRequest struct {
	Name        string `json:"name"        validate:"required,min=3"`
	Description string `json:"description"`
	AccountID   string `json:"account_id"  validate:"required"`
}

// UpdateFlowRequest updates a draft version's metadata.
type UpdateFlowRequest struct {
	Name        *string `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string `json:"description,omitempty"`
}

// AddNodeRequest places a node on a draft. Exactly one of Type or TemplateID
// selects the node's origin: the catalog or a published template.
type AddNodeRequest struct {
	Type       string  `json:"type,omitempty"`
	TemplateID string  `json:"template_id,omitempty"`
	PositionX  float64 `json:"position_x"`
	PositionY  float64 `json:"position_y"`
}

// UpdateNodeConfigRequest replaces a node's configuration.
type UpdateNodeConfigRequest struct {
	Config map[string]any `json:"config" validate:"required"`
}

// ConnectRequest adds an edge between two nodes of a draft.
type ConnectRequest struct {
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// PublishTemplateRequest captures one node of a version as a template.
type PublishTemplateRequest struct {
	FlowVersionID string `json:"flow_version_id" validate:"required"`
	NodeID        string `json:"node_id"         validate:"required"`
	Team          bool   `json:"team"`
	Marketplace   bool   `json:"marketplace"`
	Anonymous     bool   `json:"anonymous"`
	AccountID     string `json:"account_id"      validate:"required"`
}

// RunFlowRequest submits the flow's active version for execution.
type RunFlowRequest struct {
	Input map[string]any `json:"input,omitempty"`
}

// CatalogEntryResponse is one node type of the catalog listing.
type CatalogEntryResponse struct {
	Type         string             `json:"type"`
	Category     string             `json:"category"`
	Label        string             `json:"label"`
	Icon         string             `json:"icon,omitempty"`
	Description  string             `json:"description,omitempty"`
	ConfigSchema *models.JSONSchema `json:"config_schema,omitempty"`
}

// TransformCatalogEntry converts a catalog definition to its API shape.
func TransformCatalogEntry(definition *registry.Definition) CatalogEntryResponse {
	return CatalogEntryResponse{
		Type:         definition.Type,
		Category:     string(definition.Category),
		Label:        definition.Label,
		Icon:         definition.Icon,
		Description:  definition.Description,
		ConfigSchema: definition.ConfigSchema,
	}
}
