// Package version tracks the four independent compatibility axes that let
// nodes, extensions and flow definitions evolve separately from the builder.
package version

import (
	"fmt"

	"github.com/flowdeck/flowdeck/pkg/models"
	"golang.org/x/mod/semver"
)

// Axis identifies one compatibility axis.
type Axis string

const (
	AxisExtension Axis = "extension"
	AxisTrigger   Axis = "trigger"
	AxisAction    Axis = "action"
	AxisFlow      Axis = "flow"
)

// DefaultTag is the tag every axis starts at. Nothing treats it as special;
// only ordering matters.
const DefaultTag models.VersionTag = "0.0.0"

// Registry holds the maximum tag this build of the system understands per
// axis. It is passed explicitly to everything that needs compatibility
// checks, so tests can simulate an old client against a newer server without
// touching globals.
type Registry struct {
	current map[Axis]models.VersionTag
}

// Default returns a registry with every axis at DefaultTag.
func Default() *Registry {
	return New(map[Axis]models.VersionTag{
		AxisExtension: DefaultTag,
		AxisTrigger:   DefaultTag,
		AxisAction:    DefaultTag,
		AxisFlow:      DefaultTag,
	})
}

// New returns a registry with the given per-axis maximums. Missing axes
// default to DefaultTag.
func New(current map[Axis]models.VersionTag) *Registry {
	tags := make(map[Axis]models.VersionTag, 4)
	for _, axis := range []Axis{AxisExtension, AxisTrigger, AxisAction, AxisFlow} {
		tags[axis] = DefaultTag
		if tag, ok := current[axis]; ok {
			tags[axis] = tag
		}
	}

	return &Registry{current: tags}
}

// Current returns the maximum supported tag for the axis.
func (r *Registry) Current(axis Axis) models.VersionTag {
	return r.current[axis]
}

// IsCompatible reports whether a tag can be interpreted by this registry:
// true iff tag <= Current(axis) under semantic-version ordering. A malformed
// tag is never compatible. Returning false is not itself an error; callers
// decide whether to refuse load or migrate.
func (r *Registry) IsCompatible(tag models.VersionTag, axis Axis) bool {
	candidate := canonical(tag)
	if !semver.IsValid(candidate) {
		return false
	}

	return semver.Compare(candidate, canonical(r.current[axis])) <= 0
}

// Compare orders two tags: -1, 0 or +1. Malformed tags sort before valid
// ones, matching semver.Compare.
func Compare(a, b models.VersionTag) int {
	return semver.Compare(canonical(a), canonical(b))
}

func canonical(tag models.VersionTag) string {
	return "v" + string(tag)
}

// IncompatibleVersionError reports a tag above the supported maximum of an
// axis. It is surfaced to the caller, never silently downgraded.
type IncompatibleVersionError struct {
	Axis      Axis
	Tag       models.VersionTag
	Supported models.VersionTag
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("%s version %q is not supported (maximum %q)", e.Axis, e.Tag, e.Supported)
}

// CheckNode verifies every version tag stamped on a node against the
// registry. Empty tags are treated as the axis default.
func (r *Registry) CheckNode(node *models.Node) error {
	checks := []struct {
		axis Axis
		tag  models.VersionTag
	}{
		{AxisExtension, node.ExtensionVersion},
		{AxisTrigger, node.TriggerVersion},
		{AxisAction, node.ActionVersion},
	}

	for _, check := range checks {
		if check.tag == "" {
			continue
		}

		if !r.IsCompatible(check.tag, check.axis) {
			return &IncompatibleVersionError{
				Axis:      check.axis,
				Tag:       check.tag,
				Supported: r.current[check.axis],
			}
		}
	}

	return nil
}

// CheckFlow verifies the flow's interface tag and every node's tags.
func (r *Registry) CheckFlow(flow *models.Flow) error {
	if flow.InterfaceVersion != "" && !r.IsCompatible(flow.InterfaceVersion, AxisFlow) {
		return &IncompatibleVersionError{
			Axis:      AxisFlow,
			Tag:       flow.InterfaceVersion,
			Supported: r.current[AxisFlow],
		}
	}

	for _, node := range flow.Nodes {
		if err := r.CheckNode(node); err != nil {
			return err
		}
	}

	return nil
}
