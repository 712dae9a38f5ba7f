package models

// Built-in trigger node types.
const (
	NodeTypeTriggerWebhook  = "trigger:webhook"
	NodeTypeTriggerSchedule = "trigger:schedule"
	NodeTypeTriggerManual   = "trigger:manual"
)

// Built-in action node types.
const (
	NodeTypeHTTPRequest = "action:http_request"
	NodeTypeTransform   = "action:transform"
	NodeTypeFilter      = "action:filter"
	NodeTypeBranch      = "action:branch"
	NodeTypeLoop        = "action:loop"
	NodeTypeInput       = "action:input"
	NodeTypeOutput      = "action:output"
)

// Position is builder-canvas layout only; it carries no execution semantics.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Presentation groups layout attributes persisted for the builder canvas.
type Presentation struct {
	Position Position `json:"position"`
}

// HandleKind distinguishes incoming from outgoing connection points.
type HandleKind string

const (
	HandleKindSource HandleKind = "source"
	HandleKindTarget HandleKind = "target"
)

// Handle is a named connection point on a node that edges attach to.
type Handle struct {
	ID   string     `json:"id"`
	Kind HandleKind `json:"kind"`
}

// Node is one node instance owned by exactly one flow version. Copying a node
// into another flow always goes through Clone plus a fresh id resolution.
type Node struct {
	ID          string `json:"node_id"     validate:"required"`
	Type        string `json:"type"        validate:"required"`
	Label       string `json:"label"       validate:"required,min=1"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	// Trigger marks the flow's entry node. A valid flow has exactly one.
	Trigger      bool           `json:"trigger"`
	Variables    map[string]any `json:"variables,omitempty"`
	Config       map[string]any `json:"config"`
	ConfigSchema *JSONSchema    `json:"config_schema,omitempty"`
	MockData     map[string]any `json:"mock_data,omitempty"`
	Presentation Presentation   `json:"presentation"`
	Handles      []Handle       `json:"handles,omitempty"`

	ExtensionVersion VersionTag `json:"extension_version"`
	TriggerVersion   VersionTag `json:"trigger_version,omitempty"`
	ActionVersion    VersionTag `json:"action_version,omitempty"`
}

// Clone returns a deep copy of the node. Maps and the config schema are
// copied so template instantiation and version snapshots never alias state.
func (n *Node) Clone() *Node {
	clone := *n
	clone.Variables = cloneMap(n.Variables)
	clone.Config = cloneMap(n.Config)
	clone.MockData = cloneMap(n.MockData)
	clone.ConfigSchema = n.ConfigSchema.Clone()

	clone.Handles = make([]Handle, len(n.Handles))
	copy(clone.Handles, n.Handles)

	return &clone
}

// CloneConfig deep-copies a config-style map so stored state never aliases a
// map the caller may keep mutating.
func CloneConfig(config map[string]any) map[string]any {
	return cloneMap(config)
}

// cloneMap deep-copies a config-style map. Nested maps and slices are copied
// recursively; scalar leaves are copied by value.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return cloneMap(value)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return value
	}
}
