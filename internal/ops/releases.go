package ops

import (
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/notifications"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// CreateRelease points channel at bundleID, requiring the bundle's
// gate to allow releases (§4.G "Create release"). The channel's
// current head is always the release with the latest ReleasedAt;
// since releases are append-only and stamped with the server clock,
// the most-recently-created release for a channel is its head.
func CreateRelease(rs *repostate.RepoState, subject identity.Subject, channel, bundleID, notes string, now time.Time, notify *notifications.Broadcaster) (*model.Release, error) {
	var out *model.Release
	err := rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to create a release")
		}
		bundle, ok := findBundle(repo, bundleID)
		if !ok {
			return apierr.NotFound("bundle %s not found", bundleID)
		}
		gateDef, ok := findGate(repo, bundle.Gate)
		if !ok {
			return apierr.Validation("bundle's gate %q no longer exists", bundle.Gate)
		}
		if !gateDef.AllowReleases {
			return apierr.Validation("gate %q does not allow releases", bundle.Gate)
		}

		releasedAt := nowString(now)
		rel := &model.Release{
			ID:               model.ComputeReleaseID(channel, bundleID, bundle.Scope, bundle.Gate, subject.Handle, releasedAt),
			Channel:          channel,
			BundleID:         bundleID,
			Scope:            bundle.Scope,
			Gate:             bundle.Gate,
			ReleasedBy:       subject.Handle,
			ReleasedByUserID: subject.UserID,
			ReleasedAt:       releasedAt,
			Notes:            notes,
		}
		repo.Releases = append(repo.Releases, rel)
		out = rel

		if err := writeReleaseSidecar(rs, rel); err != nil {
			return err
		}
		if err := persist(rs, repo); err != nil {
			return err
		}
		notify.Publish(notifications.Event{
			Type: notifications.EventReleaseCreated, RepoID: repo.ID, Subject: rel.ID,
			Actor: subject.Handle, Timestamp: now,
			Fields: map[string]any{"channel": channel, "bundle_id": bundleID},
		})
		return nil
	})
	return out, err
}

// ChannelHead returns the current release for channel: the one with
// the latest ReleasedAt.
func ChannelHead(repo *model.Repo, channel string) (*model.Release, bool) {
	var head *model.Release
	for _, r := range repo.Releases {
		if r.Channel != channel {
			continue
		}
		if head == nil || r.ReleasedAt > head.ReleasedAt {
			head = r
		}
	}
	return head, head != nil
}
