package ops

import (
	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// IngestSnap stores rec in the object store (validating its ID per
// §4.A's PutSnap contract) and then records it in the repo aggregate's
// `snaps` set (§3 Repo: "snaps: set of snap_ids known to exist"), the
// index CreatePublication and lane head updates both consult. The
// object write itself does not need the repo write lock (large
// payloads never hold it, per §5); only the index update does.
func IngestSnap(rs *repostate.RepoState, subject identity.Subject, id objectid.ID, rec *model.SnapRecord) error {
	if err := rs.View(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to upload a snap")
		}
		return nil
	}); err != nil {
		return err
	}

	if err := rs.Store().PutSnap(id, rec); err != nil {
		return err
	}

	return rs.Update(func(repo *model.Repo) error {
		if repo.Snaps == nil {
			repo.Snaps = map[objectid.ID]struct{}{}
		}
		repo.Snaps[id] = struct{}{}
		return persist(rs, repo)
	})
}
