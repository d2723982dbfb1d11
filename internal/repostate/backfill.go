package repostate

import "github.com/inflatable-cookie/convergence-sub001/internal/model"

// BackfillProvenanceUserIDs fills in the *_user_id fields of
// publications, bundles, promotions, and releases from handleToID,
// wherever the field is still empty. Grounded on
// defaults_backfill.rs::backfill_provenance_user_ids.
func BackfillProvenanceUserIDs(repo *model.Repo, handleToID map[string]string) {
	for _, p := range repo.Publications {
		if p.PublisherUserID == "" {
			p.PublisherUserID = handleToID[p.Publisher]
		}
	}
	for _, b := range repo.Bundles {
		if b.CreatedByUserID == "" {
			b.CreatedByUserID = handleToID[b.CreatedBy]
		}
		if len(b.ApprovalUserIDs) == 0 && len(b.Approvals) > 0 {
			b.ApprovalUserIDs = model.SortedDedupedStrings(mapHandles(b.Approvals, handleToID))
		}
	}
	for _, p := range repo.Promotions {
		if p.PromotedByUserID == "" {
			p.PromotedByUserID = handleToID[p.PromotedBy]
		}
	}
	for _, r := range repo.Releases {
		if r.ReleasedByUserID == "" {
			r.ReleasedByUserID = handleToID[r.ReleasedBy]
		}
	}
}

func mapHandles(handles []string, handleToID map[string]string) []string {
	var ids []string
	for _, h := range handles {
		if id, ok := handleToID[h]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// BackfillACLUserIDs fills in repo.OwnerUserID, the reader/publisher
// user_id sets, and every lane's member_user_ids set from handleToID,
// wherever the corresponding set is still empty but its handle-based
// counterpart is not. Grounded on
// defaults_backfill.rs::backfill_acl_user_ids.
func BackfillACLUserIDs(repo *model.Repo, handleToID map[string]string) {
	if repo.OwnerUserID == "" {
		repo.OwnerUserID = handleToID[repo.Owner]
	}
	if len(repo.ReaderUserIDs) == 0 && len(repo.Readers) > 0 {
		repo.ReaderUserIDs = backfillSet(repo.Readers, handleToID)
	}
	if len(repo.PublisherUserIDs) == 0 && len(repo.Publishers) > 0 {
		repo.PublisherUserIDs = backfillSet(repo.Publishers, handleToID)
	}
	for _, lane := range repo.Lanes {
		if len(lane.MemberUserIDs) == 0 && len(lane.Members) > 0 {
			lane.MemberUserIDs = backfillSet(lane.Members, handleToID)
		}
	}
}

func backfillSet(handles map[string]struct{}, handleToID map[string]string) map[string]struct{} {
	out := make(map[string]struct{})
	for h := range handles {
		if id, ok := handleToID[h]; ok {
			out[id] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
