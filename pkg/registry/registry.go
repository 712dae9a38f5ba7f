// Package registry is the node catalog: every node type the builder can place
// on the canvas, with its config schema and default configuration.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// Category splits the catalog into trigger and action node types. A flow
// holds exactly one trigger node and any number of action nodes.
type Category string

const (
	CategoryTrigger Category = "trigger"
	CategoryAction  Category = "action"
)

// Definition describes one node type available to the builder.
type Definition struct {
	Type         string
	Category     Category
	Label        string
	Icon         string
	Description  string
	ConfigSchema *models.JSONSchema
	Handles      []models.Handle

	// ValidateConfig runs semantic checks the schema cannot express, such as
	// cron expression syntax. Nil when the schema alone is sufficient.
	ValidateConfig func(config map[string]any) error
}

// NewNode builds a node prototype for this type: label, schema, handles and
// schema defaults applied, with no id assigned yet.
func (d *Definition) NewNode() *models.Node {
	node := &models.Node{
		Type:         d.Type,
		Label:        d.Label,
		Icon:         d.Icon,
		Description:  d.Description,
		Trigger:      d.Category == CategoryTrigger,
		Config:       d.defaultConfig(),
		ConfigSchema: d.ConfigSchema.Clone(),
	}

	node.Handles = make([]models.Handle, len(d.Handles))
	copy(node.Handles, d.Handles)

	return node
}

func (d *Definition) defaultConfig() map[string]any {
	config := make(map[string]any)

	if d.ConfigSchema == nil {
		return config
	}

	for name, property := range d.ConfigSchema.Properties {
		if property.Default != nil {
			config[name] = property.Default
		}
	}

	return config
}

// Catalog holds the registered node definitions.
type Catalog struct {
	logger      *slog.Logger
	definitions map[string]*Definition
}

func NewCatalog(logger *slog.Logger) *Catalog {
	return &Catalog{
		logger:      logger.With("module", "registry"),
		definitions: make(map[string]*Definition),
	}
}

// NewDefaultCatalog returns a catalog preloaded with every built-in node
// type.
func NewDefaultCatalog(logger *slog.Logger) *Catalog {
	catalog := NewCatalog(logger)
	catalog.RegisterBuiltins()

	return catalog
}

func (c *Catalog) Register(definition *Definition) error {
	if definition.Type == "" {
		return fmt.Errorf("node definition requires a type")
	}

	if _, exists := c.definitions[definition.Type]; exists {
		return fmt.Errorf("node type %q already registered", definition.Type)
	}

	c.definitions[definition.Type] = definition
	c.logger.Debug("Registered node type", "type", definition.Type, "category", definition.Category)

	return nil
}

// Definition returns the catalog entry for the node type.
func (c *Catalog) Definition(nodeType string) (*Definition, error) {
	definition, ok := c.definitions[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type %q not registered", nodeType)
	}

	return definition, nil
}

// List returns every definition ordered by type for stable catalog output.
func (c *Catalog) List() []*Definition {
	definitions := make([]*Definition, 0, len(c.definitions))
	for _, definition := range c.definitions {
		definitions = append(definitions, definition)
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].Type < definitions[j].Type
	})

	return definitions
}

// ListByCategory returns the definitions of one category ordered by type.
func (c *Catalog) ListByCategory(category Category) []*Definition {
	definitions := make([]*Definition, 0)

	for _, definition := range c.List() {
		if definition.Category == category {
			definitions = append(definitions, definition)
		}
	}

	return definitions
}

// Validate checks a config map against the node type's schema, then runs the
// type's semantic validation when it has one.
func (c *Catalog) Validate(nodeType string, config map[string]any) error {
	definition, err := c.Definition(nodeType)
	if err != nil {
		return err
	}

	if definition.ConfigSchema != nil {
		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(definition.ConfigSchema),
			gojsonschema.NewGoLoader(config),
		)
		if err != nil {
			return fmt.Errorf("failed to validate config for %q: %w", nodeType, err)
		}

		if !result.Valid() {
			return configError(nodeType, result.Errors())
		}
	}

	if definition.ValidateConfig != nil {
		if err := definition.ValidateConfig(config); err != nil {
			return fmt.Errorf("invalid config for %q: %w", nodeType, err)
		}
	}

	return nil
}

func configError(nodeType string, errs []gojsonschema.ResultError) error {
	messages := make([]string, 0, len(errs))
	for _, resultError := range errs {
		messages = append(messages, resultError.String())
	}

	sort.Strings(messages)

	return fmt.Errorf("invalid config for %q: %v", nodeType, messages)
}
