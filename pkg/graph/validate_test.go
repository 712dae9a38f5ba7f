package graph_test

import (
	"testing"

	"github.com/flowdeck/flowdeck/pkg/graph"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateForExecution_ValidFlow(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)

	assert.NoError(t, builder.ValidateForExecution(flow))
}

func TestValidateForExecution_NoTrigger(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	flow, err = builder.AddNode(flow, actionDefinition("A"), models.Position{})
	require.NoError(t, err)

	err = builder.ValidateForExecution(flow)
	require.Error(t, err)

	errs, ok := graph.AsValidationErrors(err)
	require.True(t, ok)
	assert.Contains(t, errs.Error(), "no trigger")
}

func TestValidateForExecution_TwoTriggers(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	flow, err = builder.AddNode(flow, triggerDefinition(), models.Position{})
	require.NoError(t, err)

	// Bypass AddNode's guard to model a corrupted persisted document.
	second := triggerDefinition()
	second.ID = "second_trigger"
	flow.Nodes = append(flow.Nodes, second)

	err = builder.ValidateForExecution(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 trigger nodes")
}

func TestValidateForExecution_OrphanNode(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)

	orphan, err := builder.AddNode(flow, actionDefinition("Orphan"), models.Position{})
	require.NoError(t, err)

	err = builder.ValidateForExecution(orphan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"orphan" is not reachable`)
}

func TestValidateForExecution_DanglingEdge(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)
	flow.Edges = append(flow.Edges, &models.Edge{ID: "bad", Source: "fetch", Target: "ghost"})

	err := builder.ValidateForExecution(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing target node "ghost"`)
}

func TestValidateForExecution_Cycle(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)

	// Close the loop behind the builder's back; a persisted document could
	// arrive like this through import.
	flow.Edges = append(flow.Edges, &models.Edge{
		ID:     "back",
		Source: "fetch",
		Target: flow.TriggerNode().ID,
	})

	err := builder.ValidateForExecution(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateForExecution_ConfigSchema(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	flow, err = builder.AddNode(flow, triggerDefinition(), models.Position{})
	require.NoError(t, err)

	definition := actionDefinition("Fetch")
	definition.ConfigSchema = &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"url":    {Type: "string"},
			"method": {Type: "string", Enum: []any{"GET", "POST"}},
		},
		Required: []string{"url"},
	}
	definition.Config = map[string]any{"method": "GET"} // url missing

	flow, err = builder.AddNode(flow, definition, models.Position{})
	require.NoError(t, err)

	flow, err = builder.Connect(flow, flow.TriggerNode().ID, "fetch", graph.Handles{})
	require.NoError(t, err)

	err = builder.ValidateForExecution(flow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")

	// Satisfying the schema clears the failure.
	flow.FindNode("fetch").Config["url"] = "https://example.com"
	assert.NoError(t, builder.ValidateForExecution(flow))
}
