package ops

import (
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/manifestwalk"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/notifications"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// CreatePublicationInput is the request shape for POST
// /repos/:id/publications.
type CreatePublicationInput struct {
	SnapID       objectid.ID
	Scope        string
	Gate         string
	MetadataOnly bool
}

// CreatePublication binds an uploaded snap to a (scope, gate)
// coordinate, per §4.G. It validates that the snap exists, the scope
// is registered, the gate exists, and — unless MetadataOnly is set and
// the gate's AllowMetadataOnlyPublications permits it — that every
// blob the snap's manifest tree references is already present (§4.B
// availability validation with require_blobs=true). Duplicate
// (snap, scope, gate) publications are rejected with a 409 per §7/§8.
func CreatePublication(rs *repostate.RepoState, subject identity.Subject, in CreatePublicationInput, now time.Time, notify *notifications.Broadcaster) (*model.Publication, error) {
	var out *model.Publication
	err := rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to create a publication")
		}
		if !HasScope(repo, in.Scope) {
			return apierr.Validation("unknown scope %q", in.Scope)
		}
		gate, ok := findGate(repo, in.Gate)
		if !ok {
			return apierr.Validation("unknown gate %q", in.Gate)
		}
		if _, ok := repo.Snaps[in.SnapID]; !ok {
			return apierr.Validation("snap %s is not known to this repo", in.SnapID)
		}

		for _, p := range repo.Publications {
			if p.SnapID == in.SnapID && p.Scope == in.Scope && p.Gate == in.Gate {
				return apierr.Conflict("snap %s is already published at (%s, %s)", in.SnapID, in.Scope, in.Gate)
			}
		}

		metadataOnly := in.MetadataOnly && gate.AllowMetadataOnlyPublications
		if in.MetadataOnly && !gate.AllowMetadataOnlyPublications {
			return apierr.Validation("gate %q does not allow metadata-only publications", in.Gate)
		}

		snap, err := rs.Store().GetSnap(in.SnapID)
		if err != nil {
			return err
		}
		if err := manifestwalk.ValidateRefs(rs.Store(), snap.RootManifest, !metadataOnly); err != nil {
			return err
		}

		createdAt := nowString(now)
		pub := &model.Publication{
			ID:              model.ComputePublicationID(in.SnapID, in.Scope, in.Gate, subject.Handle, createdAt),
			SnapID:          in.SnapID,
			Scope:           in.Scope,
			Gate:            in.Gate,
			Publisher:       subject.Handle,
			PublisherUserID: subject.UserID,
			CreatedAt:       createdAt,
		}
		repo.Publications = append(repo.Publications, pub)
		out = pub

		if err := persist(rs, repo); err != nil {
			return err
		}
		notify.Publish(notifications.Event{
			Type: notifications.EventPublicationCreated, RepoID: repo.ID, Subject: pub.ID,
			Actor: subject.Handle, Timestamp: now,
			Fields: map[string]any{"scope": in.Scope, "gate": in.Gate, "snap_id": in.SnapID.String()},
		})
		return nil
	})
	return out, err
}

func findGate(repo *model.Repo, id string) (model.GateDef, bool) {
	for _, g := range repo.GateGraph.Gates {
		if g.ID == id {
			return g, true
		}
	}
	return model.GateDef{}, false
}

func findPublication(repo *model.Repo, id string) (*model.Publication, bool) {
	for _, p := range repo.Publications {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}
