package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/registry"
)

// Template manages published action templates. A template captures one
// node's configuration at publish time; later edits to the source node never
// reach the template, and instantiating a template never aliases its
// definition.
type Template struct {
	persistence persistence.Persistence
	catalog     *registry.Catalog
	logger      *slog.Logger
}

func NewTemplate(logger *slog.Logger, persistence persistence.Persistence, catalog *registry.Catalog) *Template {
	return &Template{
		persistence: persistence,
		catalog:     catalog,
		logger:      logger.With("module", "template-service"),
	}
}

// PublishTemplateRequest captures one node of a flow version as a template.
type PublishTemplateRequest struct {
	FlowVersionID string
	NodeID        string
	Visibility    models.Visibility
	Anonymous     bool
	AccountID     string
}

// Publish deep-copies the node into a new template. The template requires at
// least one visibility surface, and the node's config must satisfy its
// type's schema so broken configurations never spread through reuse.
func (t *Template) Publish(ctx context.Context, req PublishTemplateRequest) (*models.ActionTemplate, error) {
	if !req.Visibility.Team && !req.Visibility.Marketplace {
		return nil, ErrVisibilityRequired
	}

	flow, err := t.persistence.FlowRepository().GetByVersionID(ctx, req.FlowVersionID)
	if err != nil {
		return nil, err
	}

	node := flow.FindNode(req.NodeID)
	if node == nil {
		return nil, fmt.Errorf("node %q not found in version %s: %w", req.NodeID, req.FlowVersionID, ErrFlowNotFound)
	}

	if node.Trigger {
		return nil, NewValidationError(
			"PublishTemplate",
			"TRIGGER_NOT_TEMPLATABLE",
			"trigger nodes cannot be published as action templates",
			ErrInvalidRequest,
		)
	}

	if err := t.catalog.Validate(node.Type, node.Config); err != nil {
		return nil, NewValidationError("PublishTemplate", "INVALID_CONFIG", err.Error(), ErrInvalidRequest)
	}

	now := time.Now().UTC()
	template := &models.ActionTemplate{
		ID:             uuid.New().String(),
		Definition:     *node.Clone(),
		Visibility:     req.Visibility,
		Anonymous:      req.Anonymous,
		OwnerAccountID: req.AccountID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := t.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	t.logger.Info("Published action template",
		"action_template_id", template.ID,
		"node_type", node.Type,
		"marketplace", req.Visibility.Marketplace)

	return template, nil
}

// FetchByID retrieves one template.
func (t *Template) FetchByID(ctx context.Context, templateID string) (*models.ActionTemplate, error) {
	return t.persistence.TemplateRepository().GetByID(ctx, templateID)
}

// ListForAccount returns the account's team-visible templates.
func (t *Template) ListForAccount(ctx context.Context, accountID string) ([]*models.ActionTemplate, error) {
	return t.persistence.TemplateRepository().ListByAccount(ctx, accountID)
}

// ListMarketplace returns marketplace templates. Anonymous templates keep
// their content but drop owner attribution.
func (t *Template) ListMarketplace(ctx context.Context) ([]*models.ActionTemplate, error) {
	templates, err := t.persistence.TemplateRepository().ListMarketplace(ctx)
	if err != nil {
		return nil, err
	}

	for _, template := range templates {
		if template.Anonymous {
			template.OwnerAccountID = ""
		}
	}

	return templates, nil
}

// Delete removes a template. Only the owning account may delete it.
func (t *Template) Delete(ctx context.Context, templateID, accountID string) error {
	template, err := t.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return err
	}

	if template.OwnerAccountID != accountID {
		return fmt.Errorf("template %s: %w", templateID, ErrNotTemplateOwner)
	}

	if err := t.persistence.TemplateRepository().Delete(ctx, templateID); err != nil {
		return err
	}

	t.logger.Info("Deleted action template", "action_template_id", templateID)

	return nil
}
