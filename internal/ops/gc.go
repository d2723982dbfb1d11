package ops

import (
	"github.com/inflatable-cookie/convergence-sub001/internal/gc"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// RunGC gates gc.Run behind the same owner-or-admin check every other
// repo-administration mutation uses, since a destructive sweep is at
// least as sensitive as a membership change.
func RunGC(rs *repostate.RepoState, subject identity.Subject, opts gc.Options) (gc.Result, error) {
	var aclErr error
	_ = rs.View(func(repo *model.Repo) error {
		aclErr = requireAdminOrOwner(repo, subject)
		return nil
	})
	if aclErr != nil {
		return gc.Result{}, aclErr
	}
	return gc.Run(rs, opts)
}
