// Package gates implements Component F: structural validation of a
// repo's gate graph and the promotion-edge legality check.
//
// The promotability predicate is grounded directly on
// original_source's object_graph/merge.rs::compute_promotability (kept
// in internal/merge, since it is computed alongside the merge that
// produces a bundle's root manifest); this package owns the graph-shape
// checks and the edge check, grounded on
// handlers_release/promotion_endpoints.rs::create_promotion's inline
// "to_gate must list bundle.gate as upstream" check and on repo
// creation's implicit requirement that every repo have a usable root
// gate (original_source seeds exactly one, "dev-intake").
package gates

import (
	"fmt"
	"regexp"

	"github.com/inflatable-cookie/convergence-sub001/internal/model"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidID reports whether s is a syntactically legal gate/scope/lane id.
func ValidID(s string) bool { return idPattern.MatchString(s) }

// ValidateGraph checks the structural invariants a gate graph must
// satisfy before it can be installed on a repo: every gate id is
// syntactically valid and unique, every upstream reference names a
// gate that exists in the same graph, the upstream relation contains no
// cycle, and at least one gate is a root (empty Upstream) so that
// publications have somewhere to land.
func ValidateGraph(g model.GateGraph) error {
	byID := make(map[string]model.GateDef, len(g.Gates))
	for _, gate := range g.Gates {
		if !ValidID(gate.ID) {
			return fmt.Errorf("invalid gate id %q", gate.ID)
		}
		if _, dup := byID[gate.ID]; dup {
			return fmt.Errorf("duplicate gate id %q", gate.ID)
		}
		byID[gate.ID] = gate
	}

	hasRoot := false
	for _, gate := range g.Gates {
		if len(gate.Upstream) == 0 {
			hasRoot = true
		}
		for _, up := range gate.Upstream {
			if _, ok := byID[up]; !ok {
				return fmt.Errorf("gate %q: unknown upstream %q", gate.ID, up)
			}
		}
	}
	if !hasRoot {
		return fmt.Errorf("gate graph has no root gate (a gate with empty upstream)")
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Gates))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("gate graph contains a cycle through %q", id)
		}
		state[id] = visiting
		for _, up := range byID[id].Upstream {
			if err := visit(up); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, gate := range g.Gates {
		if err := visit(gate.ID); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the gate with the given id, or false if absent.
func Find(g model.GateGraph, id string) (model.GateDef, bool) {
	for _, gate := range g.Gates {
		if gate.ID == id {
			return gate, true
		}
	}
	return model.GateDef{}, false
}

// ValidatePromotionEdge checks that promoting from fromGate to toGate is
// a legal edge in g: both gates must exist, and toGate must list
// fromGate as one of its upstream gates.
func ValidatePromotionEdge(g model.GateGraph, fromGate, toGate string) error {
	if _, ok := Find(g, fromGate); !ok {
		return fmt.Errorf("unknown from_gate %q", fromGate)
	}
	to, ok := Find(g, toGate)
	if !ok {
		return fmt.Errorf("unknown to_gate %q", toGate)
	}
	for _, up := range to.Upstream {
		if up == fromGate {
			return nil
		}
	}
	return fmt.Errorf("to_gate %q is not downstream of %q", toGate, fromGate)
}
