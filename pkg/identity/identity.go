// Package identity assigns conflict-free, human-readable node identifiers
// within a flow graph. Ids stay stable across edits and imports without a
// global counter: a colliding planned id gets a numeric suffix, so repeated
// inserts yield send_email, send_email_1, send_email_2.
package identity

import (
	"fmt"
	"sort"
	"strings"
)

// ResolveID resolves a planned node id against the ids already present in a
// flow. When no existing id starts with the planned id, the planned id is
// returned unchanged. Otherwise every colliding id's final character is
// inspected: a digit contributes its value, anything else contributes 0, and
// the result is planned_{max+1}.
//
// The full existing set is scanned in sorted order, never short-circuited, so
// the same inputs always resolve to the same id regardless of map iteration
// order. Bulk imports rely on that determinism.
//
// Only the last character is treated as the suffix, so a colliding foo_10
// contributes 0, not 10. ResolveIDStrict parses the whole trailing run
// instead.
func ResolveID(existing []string, planned string) string {
	return resolve(existing, planned, lastCharSuffix)
}

// ResolveIDStrict behaves like ResolveID but parses the full trailing
// numeric run of each colliding id (foo_10 contributes 10), guaranteeing the
// resolved id never collides even past ten siblings.
func ResolveIDStrict(existing []string, planned string) string {
	return resolve(existing, planned, trailingRunSuffix)
}

func resolve(existing []string, planned string, suffix func(string) int) string {
	ids := append([]string(nil), existing...)
	sort.Strings(ids)

	collision := false
	maxSuffix := 0

	for _, id := range ids {
		if !strings.HasPrefix(id, planned) {
			continue
		}

		collision = true

		if n := suffix(id); n > maxSuffix {
			maxSuffix = n
		}
	}

	if !collision {
		return planned
	}

	return fmt.Sprintf("%s_%d", planned, maxSuffix+1)
}

func lastCharSuffix(id string) int {
	if id == "" {
		return 0
	}

	last := id[len(id)-1]
	if last < '0' || last > '9' {
		return 0
	}

	return int(last - '0')
}

func trailingRunSuffix(id string) int {
	end := len(id)

	start := end
	for start > 0 && id[start-1] >= '0' && id[start-1] <= '9' {
		start--
	}

	if start == end {
		return 0
	}

	n := 0
	for _, c := range id[start:end] {
		n = n*10 + int(c-'0')
	}

	return n
}
