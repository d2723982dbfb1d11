package ops

import (
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/gates"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/merge"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/notifications"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// CreatePromotion advances bundleID from its own gate across the edge
// to toGate, per §4.F/§4.G. Promotability and the edge's legality are
// both re-checked at promotion time (not just trusted from the
// bundle's last-recorded Promotable flag), guarding against concurrent
// gate-graph changes per §4.G's "Create promotion" contract. Success
// updates promotion_state[scope][to_gate] = bundle.id.
func CreatePromotion(rs *repostate.RepoState, subject identity.Subject, bundleID, toGate string, now time.Time, notify *notifications.Broadcaster) (*model.Promotion, error) {
	var out *model.Promotion
	err := rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to promote a bundle")
		}
		bundle, ok := findBundle(repo, bundleID)
		if !ok {
			return apierr.NotFound("bundle %s not found", bundleID)
		}
		if err := gates.ValidatePromotionEdge(repo.GateGraph, bundle.Gate, toGate); err != nil {
			return apierr.Validation("%s", err.Error())
		}

		toGateDef, _ := gates.Find(repo.GateGraph, toGate)
		hasSuper, err := merge.HasSuperpositions(rs.Store(), bundle.RootManifest)
		if err != nil {
			return err
		}
		promotable, reasons := merge.ComputePromotability(toGateDef, hasSuper, len(bundle.Approvals))
		bundle.Promotable, bundle.Reasons = promotable, reasons
		if !promotable {
			return apierr.Conflict("bundle %s is not promotable: %v", bundleID, reasons)
		}

		promotedAt := nowString(now)
		promo := &model.Promotion{
			ID:               model.ComputePromotionID(bundleID, bundle.Scope, bundle.Gate, toGate, subject.Handle, promotedAt),
			BundleID:         bundleID,
			Scope:            bundle.Scope,
			FromGate:         bundle.Gate,
			ToGate:           toGate,
			PromotedBy:       subject.Handle,
			PromotedByUserID: subject.UserID,
			PromotedAt:       promotedAt,
		}
		repo.Promotions = append(repo.Promotions, promo)
		if repo.PromotionState == nil {
			repo.PromotionState = map[string]map[string]string{}
		}
		if repo.PromotionState[bundle.Scope] == nil {
			repo.PromotionState[bundle.Scope] = map[string]string{}
		}
		// The newly appended promotion has the latest PromotedAt by
		// construction (it is stamped with `now`), so it always wins the
		// per-(scope,to_gate) pointer — matching
		// RebuildPromotionState's "keep the greatest PromotedAt" rule
		// without having to re-scan the whole promotion log on every call.
		repo.PromotionState[bundle.Scope][toGate] = bundleID
		out = promo

		if err := writePromotionSidecar(rs, promo); err != nil {
			return err
		}
		if err := persist(rs, repo); err != nil {
			return err
		}
		notify.Publish(notifications.Event{
			Type: notifications.EventBundlePromoted, RepoID: repo.ID, Subject: bundleID,
			Actor: subject.Handle, Timestamp: now,
			Fields: map[string]any{"scope": bundle.Scope, "from_gate": bundle.Gate, "to_gate": toGate},
		})
		return nil
	})
	return out, err
}
