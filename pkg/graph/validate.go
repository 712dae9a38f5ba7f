package graph

import (
	"fmt"

	"github.com/flowdeck/flowdeck/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateForExecution is the gate a flow version must pass before it may be
// published or submitted to the engine. It checks that exactly one trigger
// exists, every node is reachable from it, the edge set is acyclic, edge
// endpoints resolve, and each node's config satisfies its config schema.
// Drafts are allowed to be transiently invalid; this runs only at the
// publish/submit boundary, not on every mutation.
func (b *Builder) ValidateForExecution(flow *models.Flow) error {
	var errs ValidationErrors

	errs = append(errs, validateTrigger(flow)...)
	errs = append(errs, validateEdges(flow)...)
	errs = append(errs, validateReachability(flow)...)
	errs = append(errs, validateAcyclic(flow)...)
	errs = append(errs, validateConfigs(flow)...)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func validateTrigger(flow *models.Flow) ValidationErrors {
	count := 0
	for _, node := range flow.Nodes {
		if node.Trigger {
			count++
		}
	}

	switch {
	case count == 0:
		return ValidationErrors{{Field: "nodes", Rule: "trigger", Message: "flow has no trigger node"}}
	case count > 1:
		return ValidationErrors{{
			Field:   "nodes",
			Rule:    "trigger",
			Message: fmt.Sprintf("flow has %d trigger nodes, expected exactly one", count),
		}}
	default:
		return nil
	}
}

func validateEdges(flow *models.Flow) ValidationErrors {
	var errs ValidationErrors

	for _, edge := range flow.Edges {
		if flow.FindNode(edge.Source) == nil {
			errs = append(errs, &ValidationError{
				Field:   "edges",
				Rule:    "endpoint",
				Message: fmt.Sprintf("edge %s references missing source node %q", edge.ID, edge.Source),
			})
		}

		if flow.FindNode(edge.Target) == nil {
			errs = append(errs, &ValidationError{
				Field:   "edges",
				Rule:    "endpoint",
				Message: fmt.Sprintf("edge %s references missing target node %q", edge.ID, edge.Target),
			})
		}
	}

	return errs
}

func validateReachability(flow *models.Flow) ValidationErrors {
	trigger := flow.TriggerNode()
	if trigger == nil {
		// Reported by validateTrigger already.
		return nil
	}

	var errs ValidationErrors

	for _, node := range flow.Nodes {
		if node.ID == trigger.ID {
			continue
		}

		if !reachable(flow.Edges, trigger.ID, node.ID) {
			errs = append(errs, &ValidationError{
				Field:   "nodes",
				Rule:    "reachability",
				Message: fmt.Sprintf("node %q is not reachable from the trigger", node.ID),
			})
		}
	}

	return errs
}

func validateAcyclic(flow *models.Flow) ValidationErrors {
	adjacency := make(map[string][]string, len(flow.Edges))
	for _, edge := range flow.Edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int, len(flow.Nodes))

	var visit func(id string) bool

	visit = func(id string) bool {
		state[id] = inStack

		for _, next := range adjacency[id] {
			switch state[next] {
			case inStack:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}

		state[id] = done

		return false
	}

	for _, node := range flow.Nodes {
		if state[node.ID] == unvisited && visit(node.ID) {
			return ValidationErrors{{
				Field:   "edges",
				Rule:    "acyclic",
				Message: "flow contains a cycle; execution order is a topological traversal from the trigger",
			}}
		}
	}

	return nil
}

func validateConfigs(flow *models.Flow) ValidationErrors {
	var errs ValidationErrors

	for _, node := range flow.Nodes {
		if node.ConfigSchema == nil {
			continue
		}

		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(node.ConfigSchema),
			gojsonschema.NewGoLoader(node.Config),
		)
		if err != nil {
			errs = append(errs, &ValidationError{
				Field:   node.ID + ".config_schema",
				Rule:    "schema",
				Message: err.Error(),
			})

			continue
		}

		for _, desc := range result.Errors() {
			errs = append(errs, &ValidationError{
				Field:   node.ID + ".config",
				Rule:    "schema",
				Message: desc.String(),
			})
		}
	}

	return errs
}
