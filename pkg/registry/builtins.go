package registry

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/flowdeck/flowdeck/pkg/models"
)

// RegisterBuiltins loads every built-in trigger and action node type into the
// catalog. Registration only fails on duplicate types, which cannot happen
// here.
func (c *Catalog) RegisterBuiltins() {
	builtins := []*Definition{
		webhookTriggerDefinition(),
		scheduleTriggerDefinition(),
		manualTriggerDefinition(),
		httpRequestDefinition(),
		transformDefinition(),
		filterDefinition(),
		branchDefinition(),
		loopDefinition(),
		inputDefinition(),
		outputDefinition(),
	}

	for _, definition := range builtins {
		if err := c.Register(definition); err != nil {
			c.logger.Error("Failed to register built-in node type", "type", definition.Type, "error", err)
		}
	}
}

func sourceHandle() []models.Handle {
	return []models.Handle{{ID: "out", Kind: models.HandleKindSource}}
}

func flowHandles() []models.Handle {
	return []models.Handle{
		{ID: "in", Kind: models.HandleKindTarget},
		{ID: "out", Kind: models.HandleKindSource},
	}
}

func webhookTriggerDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeTriggerWebhook,
		Category:    CategoryTrigger,
		Label:       "Webhook",
		Icon:        "webhook",
		Description: "Starts the flow when an HTTP request arrives",
		Handles:     sourceHandle(),
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Webhook Trigger Configuration",
			Properties: map[string]*models.Property{
				"method": {
					Type:        "string",
					Description: "HTTP method the webhook accepts",
					Enum:        []any{"GET", "POST", "PUT", "DELETE"},
					Default:     "POST",
				},
				"path": {
					Type:        "string",
					Description: "Webhook path suffix",
					Pattern:     `^/[a-zA-Z0-9/_-]*$`,
				},
			},
			Required: []string{"path"},
		},
	}
}

func scheduleTriggerDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeTriggerSchedule,
		Category:    CategoryTrigger,
		Label:       "Schedule",
		Icon:        "clock",
		Description: "Starts the flow on a cron schedule",
		Handles:     sourceHandle(),
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Schedule Trigger Configuration",
			Properties: map[string]*models.Property{
				"cron": {
					Type:        "string",
					Description: "Cron expression in standard five-field format",
					Default:     "0 * * * *",
				},
				"timezone": {
					Type:        "string",
					Description: "IANA timezone name, UTC when empty",
				},
			},
			Required: []string{"cron"},
		},
		ValidateConfig: validateCronConfig,
	}
}

func validateCronConfig(config map[string]any) error {
	expression, ok := config["cron"].(string)
	if !ok {
		return fmt.Errorf("cron expression must be a string")
	}

	if _, err := cron.ParseStandard(expression); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	return nil
}

func manualTriggerDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeTriggerManual,
		Category:    CategoryTrigger,
		Label:       "Manual",
		Icon:        "hand",
		Description: "Starts the flow when triggered by hand",
		Handles:     sourceHandle(),
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Manual Trigger Configuration",
		},
	}
}

func httpRequestDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeHTTPRequest,
		Category:    CategoryAction,
		Label:       "HTTP Request",
		Icon:        "globe",
		Description: "Calls an external HTTP endpoint",
		Handles:     flowHandles(),
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "HTTP Request Configuration",
			Properties: map[string]*models.Property{
				"url": {
					Type:        "string",
					Description: "Target URL",
					Format:      "uri",
				},
				"method": {
					Type:    "string",
					Enum:    []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
					Default: "GET",
				},
				"headers": {
					Type:        "object",
					Description: "Request headers",
				},
				"body": {
					Type:        "string",
					Description: "Request body template",
				},
				"timeout_seconds": {
					Type:    "integer",
					Default: 30,
				},
			},
			Required: []string{"url"},
		},
	}
}

func transformDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeTransform,
		Category:    CategoryAction,
		Label:       "Transform",
		Icon:        "shuffle",
		Description: "Reshapes the incoming payload with an expression",
		Handles:     flowHandles(),
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Transform Configuration",
			Properties: map[string]*models.Property{
				"expression": {
					Type:        "string",
					Description: "Mapping expression applied to the input payload",
				},
			},
			Required: []string{"expression"},
		},
	}
}

func filterDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeFilter,
		Category:    CategoryAction,
		Label:       "Filter",
		Icon:        "funnel",
		Description: "Passes the payload through only when the condition holds",
		Handles:     flowHandles(),
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Filter Configuration",
			Properties: map[string]*models.Property{
				"condition": {
					Type:        "string",
					Description: "Boolean expression evaluated against the payload",
				},
			},
			Required: []string{"condition"},
		},
	}
}

func branchDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeBranch,
		Category:    CategoryAction,
		Label:       "Branch",
		Icon:        "git-branch",
		Description: "Routes the payload down the true or false path",
		Handles: []models.Handle{
			{ID: "in", Kind: models.HandleKindTarget},
			{ID: "true", Kind: models.HandleKindSource},
			{ID: "false", Kind: models.HandleKindSource},
		},
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Branch Configuration",
			Properties: map[string]*models.Property{
				"condition": {
					Type:        "string",
					Description: "Boolean expression selecting the branch",
				},
			},
			Required: []string{"condition"},
		},
	}
}

func loopDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeLoop,
		Category:    CategoryAction,
		Label:       "Loop",
		Icon:        "repeat",
		Description: "Runs the downstream path once per item in a collection",
		Handles: []models.Handle{
			{ID: "in", Kind: models.HandleKindTarget},
			{ID: "each", Kind: models.HandleKindSource},
			{ID: "done", Kind: models.HandleKindSource},
		},
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Loop Configuration",
			Properties: map[string]*models.Property{
				"items": {
					Type:        "string",
					Description: "Expression yielding the collection to iterate",
				},
			},
			Required: []string{"items"},
		},
	}
}

func inputDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeInput,
		Category:    CategoryAction,
		Label:       "Input",
		Icon:        "download",
		Description: "Reads a named value from the session input",
		Handles:     flowHandles(),
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Input Configuration",
			Properties: map[string]*models.Property{
				"key": {
					Type:        "string",
					Description: "Session input key",
				},
			},
			Required: []string{"key"},
		},
	}
}

func outputDefinition() *Definition {
	return &Definition{
		Type:        models.NodeTypeOutput,
		Category:    CategoryAction,
		Label:       "Output",
		Icon:        "upload",
		Description: "Writes a value to the session output",
		Handles: []models.Handle{
			{ID: "in", Kind: models.HandleKindTarget},
		},
		ConfigSchema: &models.JSONSchema{
			Type:  "object",
			Title: "Output Configuration",
			Properties: map[string]*models.Property{
				"key": {
					Type:        "string",
					Description: "Session output key",
				},
			},
			Required: []string{"key"},
		},
	}
}
