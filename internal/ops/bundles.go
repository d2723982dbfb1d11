package ops

import (
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/merge"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/notifications"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// CreateBundle merges the root manifests of publicationIDs (all of
// which must share the same (scope, gate)) into a single bundle, per
// §4.C/§4.G. The bundle's promotability is evaluated immediately
// against its own gate so creation and inspection never disagree.
func CreateBundle(rs *repostate.RepoState, subject identity.Subject, scope, gate string, publicationIDs []string, now time.Time, notify *notifications.Broadcaster) (*model.Bundle, error) {
	var out *model.Bundle
	err := rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to create a bundle")
		}
		if len(publicationIDs) == 0 {
			return apierr.Validation("a bundle requires at least one input publication")
		}
		gateDef, ok := findGate(repo, gate)
		if !ok {
			return apierr.Validation("unknown gate %q", gate)
		}

		inputs := make([]merge.Input, 0, len(publicationIDs))
		for _, pid := range publicationIDs {
			pub, ok := findPublication(repo, pid)
			if !ok {
				return apierr.Validation("unknown publication %q", pid)
			}
			if pub.Scope != scope || pub.Gate != gate {
				return apierr.Validation("publication %q is not at (%s, %s)", pid, scope, gate)
			}
			snap, err := rs.Store().GetSnap(pub.SnapID)
			if err != nil {
				return err
			}
			inputs = append(inputs, merge.Input{PublicationID: pid, RootManifest: snap.RootManifest})
		}

		root, err := merge.Coalesce(rs.Store(), repo.ID, inputs)
		if err != nil {
			return err
		}
		hasSuper, err := merge.HasSuperpositions(rs.Store(), root)
		if err != nil {
			return err
		}

		createdAt := nowString(now)
		sortedPubs := model.SortedDedupedStrings(publicationIDs)
		id := model.ComputeBundleID(repo.ID, scope, gate, root, sortedPubs, subject.Handle, createdAt)

		promotable, reasons := merge.ComputePromotability(gateDef, hasSuper, 0)

		bundle := &model.Bundle{
			ID:                id,
			Scope:             scope,
			Gate:              gate,
			RootManifest:      root,
			InputPublications: sortedPubs,
			CreatedBy:         subject.Handle,
			CreatedByUserID:   subject.UserID,
			CreatedAt:         createdAt,
			Promotable:        promotable,
			Reasons:           reasons,
			Approvals:         nil,
		}
		repo.Bundles = append(repo.Bundles, bundle)
		out = bundle

		if err := writeBundleSidecar(rs, bundle); err != nil {
			return err
		}
		if err := persist(rs, repo); err != nil {
			return err
		}
		notify.Publish(notifications.Event{
			Type: notifications.EventBundleCreated, RepoID: repo.ID, Subject: bundle.ID,
			Actor: subject.Handle, Timestamp: now,
			Fields: map[string]any{"scope": scope, "gate": gate, "promotable": promotable},
		})
		return nil
	})
	return out, err
}

func findBundle(repo *model.Repo, id string) (*model.Bundle, bool) {
	for _, b := range repo.Bundles {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// ApproveBundle appends subject's handle to bundle's approval set
// (idempotent — re-approving is a no-op) and re-evaluates
// promotability against the bundle's own gate.
func ApproveBundle(rs *repostate.RepoState, subject identity.Subject, bundleID string, now time.Time, notify *notifications.Broadcaster) (*model.Bundle, error) {
	var out *model.Bundle
	err := rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to approve a bundle")
		}
		bundle, ok := findBundle(repo, bundleID)
		if !ok {
			return apierr.NotFound("bundle %s not found", bundleID)
		}
		gateDef, ok := findGate(repo, bundle.Gate)
		if !ok {
			return apierr.Validation("bundle's gate %q no longer exists", bundle.Gate)
		}

		bundle.Approvals = model.SortedDedupedStrings(append(bundle.Approvals, subject.Handle))
		if subject.UserID != "" {
			bundle.ApprovalUserIDs = model.SortedDedupedStrings(append(bundle.ApprovalUserIDs, subject.UserID))
		}

		hasSuper, err := merge.HasSuperpositions(rs.Store(), bundle.RootManifest)
		if err != nil {
			return err
		}
		bundle.Promotable, bundle.Reasons = merge.ComputePromotability(gateDef, hasSuper, len(bundle.Approvals))
		out = bundle

		if err := writeBundleSidecar(rs, bundle); err != nil {
			return err
		}
		if err := persist(rs, repo); err != nil {
			return err
		}
		notify.Publish(notifications.Event{
			Type: notifications.EventBundleApproved, RepoID: repo.ID, Subject: bundle.ID,
			Actor: subject.Handle, Timestamp: now,
			Fields: map[string]any{"promotable": bundle.Promotable, "approvals": len(bundle.Approvals)},
		})
		return nil
	})
	return out, err
}

// PinBundle adds bundleID to the repo's GC retention roots regardless
// of release or promotion state (§3 Pin, §4.G Pinning).
func PinBundle(rs *repostate.RepoState, subject identity.Subject, bundleID string) error {
	return rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to pin a bundle")
		}
		if _, ok := findBundle(repo, bundleID); !ok {
			return apierr.NotFound("bundle %s not found", bundleID)
		}
		if repo.PinnedBundles == nil {
			repo.PinnedBundles = map[string]struct{}{}
		}
		repo.PinnedBundles[bundleID] = struct{}{}
		return persist(rs, repo)
	})
}

// UnpinBundle removes bundleID from the retention-root pin set.
func UnpinBundle(rs *repostate.RepoState, subject identity.Subject, bundleID string) error {
	return rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to unpin a bundle")
		}
		delete(repo.PinnedBundles, bundleID)
		return persist(rs, repo)
	})
}
