package ops

import (
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// CreateLane creates an empty lane named id, owned initially by the
// creating subject's handle. Publishers (who already have access to
// every lane per identity.CanUseLane) may create lanes on behalf of
// the repo.
func CreateLane(rs *repostate.RepoState, subject identity.Subject, laneID string) (*model.Lane, error) {
	var out *model.Lane
	err := rs.Update(func(repo *model.Repo) error {
		if !identity.CanPublish(repo, subject) {
			return apierr.Forbidden("must be a publisher to create a lane")
		}
		if repo.Lanes == nil {
			repo.Lanes = map[string]*model.Lane{}
		}
		if _, exists := repo.Lanes[laneID]; exists {
			return apierr.Conflict("lane %s already exists", laneID)
		}
		lane := &model.Lane{
			ID:          laneID,
			Members:     map[string]struct{}{subject.Handle: {}},
			Heads:       map[string]model.LaneHead{},
			HeadHistory: map[string][]model.LaneHead{},
		}
		if subject.UserID != "" {
			lane.MemberUserIDs = map[string]struct{}{subject.UserID: {}}
		}
		repo.Lanes[laneID] = lane
		out = lane
		return persist(rs, repo)
	})
	return out, err
}

func getLane(repo *model.Repo, laneID string) (*model.Lane, error) {
	lane, ok := repo.Lanes[laneID]
	if !ok {
		return nil, apierr.NotFound("lane %s not found", laneID)
	}
	return lane, nil
}

// AddLaneMember adds handle to lane's membership set.
func AddLaneMember(rs *repostate.RepoState, subject identity.Subject, laneID, handle, userID string) error {
	return rs.Update(func(repo *model.Repo) error {
		lane, err := getLane(repo, laneID)
		if err != nil {
			return err
		}
		if !identity.CanUseLane(repo, lane, subject) {
			return apierr.Forbidden("not authorized to manage lane %s membership", laneID)
		}
		if lane.Members == nil {
			lane.Members = map[string]struct{}{}
		}
		lane.Members[handle] = struct{}{}
		if userID != "" {
			if lane.MemberUserIDs == nil {
				lane.MemberUserIDs = map[string]struct{}{}
			}
			lane.MemberUserIDs[userID] = struct{}{}
		}
		return persist(rs, repo)
	})
}

// RemoveLaneMember removes handle from lane's membership set.
func RemoveLaneMember(rs *repostate.RepoState, subject identity.Subject, laneID, handle string) error {
	return rs.Update(func(repo *model.Repo) error {
		lane, err := getLane(repo, laneID)
		if err != nil {
			return err
		}
		if !identity.CanUseLane(repo, lane, subject) {
			return apierr.Forbidden("not authorized to manage lane %s membership", laneID)
		}
		delete(lane.Members, handle)
		return persist(rs, repo)
	})
}

// UpdateLaneHead records subject's new head for lane, pushing the
// previous head onto head_history and truncating it to
// model.LaneHeadHistoryKeepLast entries (most recent first), per §3's
// Lane type and §8 scenario 6. snapID must already be recorded in the
// repo's snaps index (a Validation error otherwise); this is a cheap
// index lookup rather than a full availability walk.
func UpdateLaneHead(rs *repostate.RepoState, subject identity.Subject, laneID string, snapID objectid.ID, clientID string, now time.Time) error {
	return rs.Update(func(repo *model.Repo) error {
		lane, err := getLane(repo, laneID)
		if err != nil {
			return err
		}
		if !identity.CanUseLane(repo, lane, subject) {
			return apierr.Forbidden("not authorized to push to lane %s", laneID)
		}
		if _, ok := repo.Snaps[snapID]; !ok {
			return apierr.Validation("snap %s is not known to this repo", snapID)
		}

		head := model.LaneHead{SnapID: snapID, UpdatedAt: nowString(now), ClientID: clientID}

		// The retained set for a handle is its most recent
		// LaneHeadHistoryKeepLast heads, newest first. Heads[handle] is
		// always that set's first element; HeadHistory[handle] holds the
		// rest, so both fields (per §3's Lane type) stay populated but
		// never double-count the current head as an extra retained snap
		// (§8 scenario 6: 7 updates, 5 most recent survive GC).
		var recent []model.LaneHead
		if prev, had := lane.Heads[subject.Handle]; had {
			recent = append([]model.LaneHead{head, prev}, lane.HeadHistory[subject.Handle]...)
		} else {
			recent = []model.LaneHead{head}
		}
		if len(recent) > model.LaneHeadHistoryKeepLast {
			recent = recent[:model.LaneHeadHistoryKeepLast]
		}

		if lane.Heads == nil {
			lane.Heads = map[string]model.LaneHead{}
		}
		lane.Heads[subject.Handle] = recent[0]
		if lane.HeadHistory == nil {
			lane.HeadHistory = map[string][]model.LaneHead{}
		}
		lane.HeadHistory[subject.Handle] = append([]model.LaneHead(nil), recent[1:]...)

		return persist(rs, repo)
	})
}

// LaneHead returns the current head of handle's lane pointer.
func LaneHead(rs *repostate.RepoState, subject identity.Subject, laneID, handle string) (model.LaneHead, error) {
	var out model.LaneHead
	err := rs.View(func(repo *model.Repo) error {
		lane, err := getLane(repo, laneID)
		if err != nil {
			return err
		}
		if !identity.CanUseLane(repo, lane, subject) {
			return apierr.Forbidden("not authorized to read lane %s", laneID)
		}
		head, ok := lane.Heads[handle]
		if !ok {
			return apierr.NotFound("no head for %s in lane %s", handle, laneID)
		}
		out = head
		return nil
	})
	return out, err
}
