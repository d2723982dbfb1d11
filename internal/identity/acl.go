package identity

import "github.com/inflatable-cookie/convergence-sub001/internal/model"

// Subject is the authenticated caller of a request: a resolved user
// plus the handle under which ACL membership sets are still commonly
// recorded (original repos predate per-record user_id backfill, so
// membership checks must accept either form).
type Subject struct {
	UserID string
	Handle string
	Admin  bool
}

func memberOf(set map[string]struct{}, key string) bool {
	if set == nil || key == "" {
		return false
	}
	_, ok := set[key]
	return ok
}

// isOwner matches subject against repo's owner by handle or user id;
// an empty handle or user id never matches.
func isOwner(repo *model.Repo, subject Subject) bool {
	return (subject.Handle != "" && repo.Owner == subject.Handle) ||
		(subject.UserID != "" && repo.OwnerUserID == subject.UserID)
}

// CanRead reports whether subject may read repo: its owner, readers,
// and publishers (publish implies read) all qualify, and so does any
// admin.
func CanRead(repo *model.Repo, subject Subject) bool {
	if subject.Admin {
		return true
	}
	if isOwner(repo, subject) {
		return true
	}
	if memberOf(repo.Readers, subject.Handle) || memberOf(repo.ReaderUserIDs, subject.UserID) {
		return true
	}
	return CanPublish(repo, subject)
}

// CanPublish reports whether subject may publish to repo: its owner,
// publishers, and admins qualify.
func CanPublish(repo *model.Repo, subject Subject) bool {
	if subject.Admin {
		return true
	}
	if isOwner(repo, subject) {
		return true
	}
	return memberOf(repo.Publishers, subject.Handle) || memberOf(repo.PublisherUserIDs, subject.UserID)
}

// CanUseLane reports whether subject is a member of lane, or may
// publish to the repo outright (publishers implicitly have access to
// every lane).
func CanUseLane(repo *model.Repo, lane *model.Lane, subject Subject) bool {
	if CanPublish(repo, subject) {
		return true
	}
	if lane == nil {
		return false
	}
	return memberOf(lane.Members, subject.Handle) || memberOf(lane.MemberUserIDs, subject.UserID)
}
