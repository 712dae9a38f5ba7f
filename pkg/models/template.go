package models

import "time"

// Visibility controls where a published action template is discoverable.
// At least one of Team or Marketplace must be set.
type Visibility struct {
	Team        bool `json:"team"`
	Marketplace bool `json:"marketplace"`
}

// ActionTemplate is a reusable, publishable unit wrapping a node's
// configuration. Its lifecycle is independent from any flow: publishing
// deep-copies the source node and instantiation deep-copies the definition
// back out, so templates never alias node state.
type ActionTemplate struct {
	ID         string     `json:"action_template_id"`
	Definition Node       `json:"definition"`
	Visibility Visibility `json:"visibility"`
	// Anonymous suppresses owner attribution in listings; it does not change
	// where the template is visible.
	Anonymous      bool      `json:"anonymous"`
	OwnerAccountID string    `json:"owner_account_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Instantiate returns a fresh deep copy of the template's node definition.
// The caller must re-resolve the node id before inserting it into a flow.
func (t *ActionTemplate) Instantiate() *Node {
	return t.Definition.Clone()
}
