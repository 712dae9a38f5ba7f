package models

// Edge is a directed connection between two nodes of the same flow version.
// The edge set plus node set must form a DAG reachable from the trigger node.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source_node_id" validate:"required"`
	Target       string `json:"target_node_id" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}
