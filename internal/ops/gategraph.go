package ops

import (
	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/gates"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// UpdateGateGraph validates and installs a new gate graph for the
// repo. Only the owner or an admin may change gate topology, since it
// can retroactively change promotion legality and release eligibility
// for every existing bundle. On validation failure, the returned error
// carries structured Issues (§6) naming the offending gate.
func UpdateGateGraph(rs *repostate.RepoState, subject identity.Subject, graph model.GateGraph) error {
	if err := validateGateGraphIssues(graph); err != nil {
		return err
	}
	return rs.Update(func(repo *model.Repo) error {
		if err := requireAdminOrOwner(repo, subject); err != nil {
			return err
		}
		repo.GateGraph = graph
		return persist(rs, repo)
	})
}

// validateGateGraphIssues runs gates.ValidateGraph and, on failure,
// wraps it as an apierr.Validation carrying a single structured Issue
// — the teacher's errcode.Error system (internal/apierr) supports
// multiple issues, but gates.ValidateGraph stops at the first
// structural problem it finds, same as ValidateGraph's own
// short-circuiting walk.
func validateGateGraphIssues(graph model.GateGraph) error {
	if err := gates.ValidateGraph(graph); err != nil {
		return apierr.Validation("invalid gate graph: %s", err.Error()).
			WithIssues(apierr.Issue{Code: "gate_graph_invalid", Message: err.Error()})
	}
	return nil
}
