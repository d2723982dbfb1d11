package ops

import (
	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/gates"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// AddScope registers a new scope id on the repo. Scope ids follow the
// same syntax as gate ids (§6: "[a-zA-Z0-9_-]+", narrowed here to the
// same lowercase-leading pattern gates.ValidID already enforces, for
// one shared validation rule across both namespaces).
func AddScope(rs *repostate.RepoState, subject identity.Subject, scope string) error {
	if !gates.ValidID(scope) {
		return apierr.Validation("invalid scope id %q", scope)
	}
	return rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to register a scope")
		}
		if repo.Scopes == nil {
			repo.Scopes = map[string]struct{}{}
		}
		repo.Scopes[scope] = struct{}{}
		return persist(rs, repo)
	})
}

// HasScope reports whether scope is registered on repo.
func HasScope(repo *model.Repo, scope string) bool {
	_, ok := repo.Scopes[scope]
	return ok
}
