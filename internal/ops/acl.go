// Package ops implements Component G (and the repo-administration
// slice of Component D/F it depends on): every mutating operation a
// repository exposes, each acquiring the repo's write lock for its
// full duration per §5 and re-persisting the aggregate on success.
//
// Grounded throughout on original_source's handlers_* modules (one
// handler file per resource family: handlers_identity, handlers_gc,
// handlers_release) and, for the HTTP-adjacent request/response shape,
// the teacher's registry/handlers package (one small file per
// resource, a thin layer over a storage-level operation).
package ops

import (
	"encoding/json"
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
)

// persist re-serializes repo and writes it while the caller still
// holds the write lock, per §5 ("mutations... take an exclusive write
// lock for the entire repo aggregate" and persistence happens inside
// that scope). Every ops mutation ends by calling this as its last
// step before returning from the Update closure.
func persist(rs *repostate.RepoState, repo *model.Repo) error {
	if err := repostate.Persist(rs.Store(), repo); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// requireAdminOrOwner is the ACL gate shared by every repo-membership
// mutation: only the repo's owner or a server admin may change who can
// read or publish.
func requireAdminOrOwner(repo *model.Repo, subject identity.Subject) error {
	if subject.Admin {
		return nil
	}
	if (subject.Handle != "" && repo.Owner == subject.Handle) ||
		(subject.UserID != "" && repo.OwnerUserID == subject.UserID) {
		return nil
	}
	return apierr.Forbidden("only the repo owner or an admin may manage membership")
}

// AddReader grants handle read access to the repo.
func AddReader(rs *repostate.RepoState, subject identity.Subject, handle, userID string) error {
	return rs.Update(func(repo *model.Repo) error {
		if err := requireAdminOrOwner(repo, subject); err != nil {
			return err
		}
		if repo.Readers == nil {
			repo.Readers = map[string]struct{}{}
		}
		repo.Readers[handle] = struct{}{}
		if userID != "" {
			if repo.ReaderUserIDs == nil {
				repo.ReaderUserIDs = map[string]struct{}{}
			}
			repo.ReaderUserIDs[userID] = struct{}{}
		}
		return persist(rs, repo)
	})
}

// RemoveReader revokes handle's read access.
func RemoveReader(rs *repostate.RepoState, subject identity.Subject, handle string) error {
	return rs.Update(func(repo *model.Repo) error {
		if err := requireAdminOrOwner(repo, subject); err != nil {
			return err
		}
		delete(repo.Readers, handle)
		return persist(rs, repo)
	})
}

// AddPublisher grants handle publish (and implicitly read) access.
func AddPublisher(rs *repostate.RepoState, subject identity.Subject, handle, userID string) error {
	return rs.Update(func(repo *model.Repo) error {
		if err := requireAdminOrOwner(repo, subject); err != nil {
			return err
		}
		if repo.Publishers == nil {
			repo.Publishers = map[string]struct{}{}
		}
		repo.Publishers[handle] = struct{}{}
		if userID != "" {
			if repo.PublisherUserIDs == nil {
				repo.PublisherUserIDs = map[string]struct{}{}
			}
			repo.PublisherUserIDs[userID] = struct{}{}
		}
		return persist(rs, repo)
	})
}

// RemovePublisher revokes handle's publish access.
func RemovePublisher(rs *repostate.RepoState, subject identity.Subject, handle string) error {
	return rs.Update(func(repo *model.Repo) error {
		if err := requireAdminOrOwner(repo, subject); err != nil {
			return err
		}
		delete(repo.Publishers, handle)
		return persist(rs, repo)
	})
}

// nowString formats t the way every persisted timestamp in this system
// is formatted: RFC3339Nano, UTC.
func nowString(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// writeBundleSidecar persists bundle's immutable-identity-but-mutable-
// approval sidecar record (§4.E: "individual records are also written
// as immutable sidecars so that partial loss of repo.json can be
// recovered from the filesystem").
func writeBundleSidecar(rs *repostate.RepoState, bundle *model.Bundle) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return apierr.Internal(err)
	}
	if err := rs.Store().WriteBundleSidecar(bundle.ID, data); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// writePromotionSidecar persists promo's write-once sidecar record.
func writePromotionSidecar(rs *repostate.RepoState, promo *model.Promotion) error {
	data, err := json.MarshalIndent(promo, "", "  ")
	if err != nil {
		return apierr.Internal(err)
	}
	if err := rs.Store().WritePromotionSidecar(promo.ID, data); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// writeReleaseSidecar persists rel's write-once sidecar record.
func writeReleaseSidecar(rs *repostate.RepoState, rel *model.Release) error {
	data, err := json.MarshalIndent(rel, "", "  ")
	if err != nil {
		return apierr.Internal(err)
	}
	if err := rs.Store().WriteReleaseSidecar(rel.ID, data); err != nil {
		return apierr.Internal(err)
	}
	return nil
}
