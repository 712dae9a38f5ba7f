package graph_test

import (
	"testing"

	"github.com/flowdeck/flowdeck/pkg/graph"
	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/flowdeck/flowdeck/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuilder() *graph.Builder {
	return graph.NewBuilder(version.Default())
}

func triggerDefinition() *models.Node {
	return &models.Node{
		Type:    models.NodeTypeTriggerWebhook,
		Label:   "Webhook",
		Trigger: true,
	}
}

func actionDefinition(label string) *models.Node {
	return &models.Node{
		Type:  models.NodeTypeHTTPRequest,
		Label: label,
	}
}

func TestBuilder_CreateFlow(t *testing.T) {
	builder := newBuilder()

	flow, err := builder.CreateFlow("  Order Sync  ", "syncs orders")
	require.NoError(t, err)

	assert.NotEmpty(t, flow.ID)
	assert.NotEmpty(t, flow.VersionID)
	assert.Equal(t, "Order Sync", flow.Name)
	assert.Equal(t, models.FlowStatusDraft, flow.Status)
	assert.False(t, flow.Active)
	assert.Empty(t, flow.Nodes)
	assert.Nil(t, flow.TriggerNode())
	assert.Equal(t, version.DefaultTag, flow.InterfaceVersion)
}

func TestBuilder_CreateFlow_EmptyName(t *testing.T) {
	builder := newBuilder()

	_, err := builder.CreateFlow("   ", "")
	require.Error(t, err)
	assert.True(t, graph.IsValidationError(err))
}

func TestBuilder_AddNode(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	flow, err = builder.AddNode(flow, actionDefinition("Send Email"), models.Position{X: 100, Y: 50})
	require.NoError(t, err)
	require.Len(t, flow.Nodes, 1)

	node := flow.Nodes[0]
	assert.Equal(t, "send_email", node.ID)
	assert.Equal(t, models.Position{X: 100, Y: 50}, node.Presentation.Position)
	assert.Equal(t, version.DefaultTag, node.ExtensionVersion)
	assert.Equal(t, version.DefaultTag, node.ActionVersion)
	assert.Empty(t, node.TriggerVersion)
}

func TestBuilder_AddNode_ResolvesCollidingIDs(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	for range 3 {
		flow, err = builder.AddNode(flow, actionDefinition("Send Email"), models.Position{})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"send_email", "send_email_1", "send_email_2"}, flow.NodeIDs())
}

func TestBuilder_AddNode_NeverAliasesDefinition(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	definition := actionDefinition("Transform")
	definition.Config = map[string]any{"expression": "$.items"}

	flow, err = builder.AddNode(flow, definition, models.Position{})
	require.NoError(t, err)

	flow.Nodes[0].Config["expression"] = "mutated"
	assert.Equal(t, "$.items", definition.Config["expression"])
}

func TestBuilder_AddNode_DuplicateTrigger(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	flow, err = builder.AddNode(flow, triggerDefinition(), models.Position{})
	require.NoError(t, err)

	before := len(flow.Nodes)

	_, err = builder.AddNode(flow, triggerDefinition(), models.Position{})
	require.ErrorIs(t, err, graph.ErrDuplicateTrigger)
	assert.Len(t, flow.Nodes, before, "node set must be unchanged after rejection")
}

func TestBuilder_RemoveNode_CascadesEdges(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)

	flow, err := builder.RemoveNode(flow, "fetch")
	require.NoError(t, err)

	assert.Nil(t, flow.FindNode("fetch"))
	assert.Empty(t, flow.Edges, "edges referencing the removed node are deleted")
}

func TestBuilder_RemoveNode_TriggerAllowedAtDraftTime(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)

	flow, err := builder.RemoveNode(flow, flow.TriggerNode().ID)
	require.NoError(t, err)
	assert.Nil(t, flow.TriggerNode())

	// The draft is now unrunnable, reported by validation rather than the
	// mutation itself.
	err = builder.ValidateForExecution(flow)
	require.Error(t, err)
}

func TestBuilder_RemoveNode_Unknown(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)

	_, err := builder.RemoveNode(flow, "missing")
	assert.ErrorIs(t, err, graph.ErrUnknownNode)
}

func TestBuilder_Connect(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	flow, err = builder.AddNode(flow, actionDefinition("A"), models.Position{})
	require.NoError(t, err)
	flow, err = builder.AddNode(flow, actionDefinition("B"), models.Position{})
	require.NoError(t, err)

	flow, err = builder.Connect(flow, "a", "b", graph.Handles{Source: "out", Target: "in"})
	require.NoError(t, err)
	require.Len(t, flow.Edges, 1)
	assert.Equal(t, "a", flow.Edges[0].Source)
	assert.Equal(t, "b", flow.Edges[0].Target)
	assert.Equal(t, "out", flow.Edges[0].SourceHandle)
}

func TestBuilder_Connect_UnknownEndpoint(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	flow, err = builder.AddNode(flow, actionDefinition("A"), models.Position{})
	require.NoError(t, err)

	_, err = builder.Connect(flow, "a", "ghost", graph.Handles{})
	assert.ErrorIs(t, err, graph.ErrUnknownNode)

	_, err = builder.Connect(flow, "ghost", "a", graph.Handles{})
	assert.ErrorIs(t, err, graph.ErrUnknownNode)
}

func TestBuilder_Connect_RejectsCycle(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	for _, label := range []string{"A", "B"} {
		flow, err = builder.AddNode(flow, actionDefinition(label), models.Position{})
		require.NoError(t, err)
	}

	flow, err = builder.Connect(flow, "a", "b", graph.Handles{})
	require.NoError(t, err)

	before := len(flow.Edges)

	_, err = builder.Connect(flow, "b", "a", graph.Handles{})
	require.ErrorIs(t, err, graph.ErrCycle)
	assert.Len(t, flow.Edges, before, "edge set must be unchanged after rejection")

	_, err = builder.Connect(flow, "a", "a", graph.Handles{})
	assert.ErrorIs(t, err, graph.ErrCycle)
}

func TestBuilder_Connect_RejectsTransitiveCycle(t *testing.T) {
	builder := newBuilder()
	flow, err := builder.CreateFlow("test", "")
	require.NoError(t, err)

	for _, label := range []string{"A", "B", "C"} {
		flow, err = builder.AddNode(flow, actionDefinition(label), models.Position{})
		require.NoError(t, err)
	}

	flow, err = builder.Connect(flow, "a", "b", graph.Handles{})
	require.NoError(t, err)
	flow, err = builder.Connect(flow, "b", "c", graph.Handles{})
	require.NoError(t, err)

	_, err = builder.Connect(flow, "c", "a", graph.Handles{})
	assert.ErrorIs(t, err, graph.ErrCycle)
}

func TestBuilder_Disconnect(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)
	require.Len(t, flow.Edges, 1)

	flow, err := builder.Disconnect(flow, flow.Edges[0].ID)
	require.NoError(t, err)
	assert.Empty(t, flow.Edges)

	_, err = builder.Disconnect(flow, "missing")
	assert.ErrorIs(t, err, graph.ErrUnknownEdge)
}

func TestBuilder_ImmutableVersionRejectsEdits(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)
	flow.Status = models.FlowStatusPublished

	_, err := builder.AddNode(flow, actionDefinition("X"), models.Position{})
	assert.ErrorIs(t, err, graph.ErrVersionImmutable)

	_, err = builder.RemoveNode(flow, "fetch")
	assert.ErrorIs(t, err, graph.ErrVersionImmutable)

	_, err = builder.Connect(flow, "fetch", "fetch", graph.Handles{})
	assert.ErrorIs(t, err, graph.ErrVersionImmutable)
}

func TestBuilder_CreateVersion(t *testing.T) {
	builder := newBuilder()
	flow := buildLinearFlow(t, builder)
	flow.Status = models.FlowStatusPublished
	flow.Active = true

	next := builder.CreateVersion(flow)

	assert.Equal(t, flow.ID, next.ID, "versions share one flow id")
	assert.NotEqual(t, flow.VersionID, next.VersionID)
	assert.Equal(t, models.FlowStatusDraft, next.Status)
	assert.False(t, next.Active)
	assert.Nil(t, next.ExecutedAt)

	// The snapshot is independent of the source version.
	next.Nodes[0].Config["url"] = "mutated"
	assert.NotEqual(t, "mutated", flow.Nodes[0].Config["url"])
}

// buildLinearFlow assembles trigger -> fetch with one edge.
func buildLinearFlow(t *testing.T, builder *graph.Builder) *models.Flow {
	t.Helper()

	flow, err := builder.CreateFlow("linear", "")
	require.NoError(t, err)

	flow, err = builder.AddNode(flow, triggerDefinition(), models.Position{})
	require.NoError(t, err)

	fetch := actionDefinition("Fetch")
	fetch.Config = map[string]any{"url": "https://example.com"}

	flow, err = builder.AddNode(flow, fetch, models.Position{X: 200})
	require.NoError(t, err)

	flow, err = builder.Connect(flow, flow.TriggerNode().ID, "fetch", graph.Handles{})
	require.NoError(t, err)

	return flow
}
