package ops_test

import (
	"testing"
	"time"

	"github.com/inflatable-cookie/convergence-sub001/internal/identity"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/ops"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

func newTestRepo(t *testing.T) *repostate.RepoState {
	t.Helper()
	st := store.New(t.TempDir(), nil)
	rs, err := repostate.Load(st, "repo-1", "alice", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return rs
}

// publishSnap uploads a single-file snap with the given content at
// (scope, gate) and returns its publication ID.
func publishSnap(t *testing.T, rs *repostate.RepoState, subject identity.Subject, scope, gate, fileName string, content []byte, createdAt time.Time) string {
	t.Helper()
	st := rs.Store()

	blobID := objectid.FromBytes(content)
	if err := st.PutBlob(blobID, content); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	manifest := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: fileName,
		Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: blobID}},
	}}}
	manifest.SortEntries()
	rootID, err := st.PutManifest(manifest)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}

	snapCreatedAt := createdAt.UTC().Format(time.RFC3339Nano)
	snapID := model.ComputeSnapID(snapCreatedAt, rootID)
	rec := &model.SnapRecord{ID: snapID, CreatedAt: snapCreatedAt, RootManifest: rootID}
	if err := ops.IngestSnap(rs, subject, snapID, rec); err != nil {
		t.Fatalf("IngestSnap: %v", err)
	}

	pub, err := ops.CreatePublication(rs, subject, ops.CreatePublicationInput{
		SnapID: snapID, Scope: scope, Gate: gate,
	}, createdAt, nil)
	if err != nil {
		t.Fatalf("CreatePublication: %v", err)
	}
	return pub.ID
}

// TestTwoWriterConflictBlocksPromotion covers §8 scenario 1.
func TestTwoWriterConflictBlocksPromotion(t *testing.T) {
	rs := newTestRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := identity.Subject{Handle: "alice"}

	if err := rs.Update(func(repo *model.Repo) error {
		repo.GateGraph.Gates = append(repo.GateGraph.Gates, model.GateDef{
			ID: "team", Upstream: []string{"dev-intake"}, AllowReleases: true,
		})
		return nil
	}); err != nil {
		t.Fatalf("seeding team gate: %v", err)
	}

	pubA := publishSnap(t, rs, alice, "main", "dev-intake", "a.txt", []byte("from A"), now)
	pubB := publishSnap(t, rs, alice, "main", "dev-intake", "a.txt", []byte("from B"), now)

	bundle, err := ops.CreateBundle(rs, alice, "main", "dev-intake", []string{pubA, pubB}, now, nil)
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	if bundle.Promotable {
		t.Fatal("expected a two-writer conflict bundle to be non-promotable")
	}
	if len(bundle.Reasons) != 1 || bundle.Reasons[0] != "superpositions_present" {
		t.Fatalf("reasons = %v, want [superpositions_present]", bundle.Reasons)
	}

	if _, err := ops.CreatePromotion(rs, alice, bundle.ID, "team", now, nil); err == nil {
		t.Fatal("expected promoting a non-promotable bundle to fail")
	}
}

// TestCleanPromotionUpdatesPromotionState covers §8 scenario 2.
func TestCleanPromotionUpdatesPromotionState(t *testing.T) {
	rs := newTestRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := identity.Subject{Handle: "alice"}

	if err := rs.Update(func(repo *model.Repo) error {
		repo.GateGraph.Gates = append(repo.GateGraph.Gates, model.GateDef{
			ID: "team", Upstream: []string{"dev-intake"}, AllowReleases: true,
		})
		return nil
	}); err != nil {
		t.Fatalf("seeding team gate: %v", err)
	}

	pub := publishSnap(t, rs, alice, "main", "dev-intake", "one.txt", []byte("one\n"), now)
	bundle, err := ops.CreateBundle(rs, alice, "main", "dev-intake", []string{pub}, now, nil)
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	if !bundle.Promotable {
		t.Fatalf("expected a single clean publication to be promotable, reasons=%v", bundle.Reasons)
	}

	if _, err := ops.CreatePromotion(rs, alice, bundle.ID, "team", now, nil); err != nil {
		t.Fatalf("CreatePromotion: %v", err)
	}

	if err := rs.View(func(repo *model.Repo) error {
		if repo.PromotionState["main"]["team"] != bundle.ID {
			t.Fatalf("promotion_state[main][team] = %q, want %q", repo.PromotionState["main"]["team"], bundle.ID)
		}
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

// TestRequiredApprovalsGatePromotion covers §8 scenario 3.
func TestRequiredApprovalsGatePromotion(t *testing.T) {
	rs := newTestRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := identity.Subject{Handle: "alice"}

	if err := rs.Update(func(repo *model.Repo) error {
		repo.GateGraph.Gates[0].RequiredApprovals = 1
		return nil
	}); err != nil {
		t.Fatalf("setting required_approvals: %v", err)
	}

	pub := publishSnap(t, rs, alice, "main", "dev-intake", "f.txt", []byte("content"), now)
	bundle, err := ops.CreateBundle(rs, alice, "main", "dev-intake", []string{pub}, now, nil)
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	if bundle.Promotable || len(bundle.Reasons) != 1 || bundle.Reasons[0] != "approvals_missing" {
		t.Fatalf("expected reasons=[approvals_missing], got promotable=%v reasons=%v", bundle.Promotable, bundle.Reasons)
	}

	approved, err := ops.ApproveBundle(rs, alice, bundle.ID, now, nil)
	if err != nil {
		t.Fatalf("ApproveBundle: %v", err)
	}
	if !approved.Promotable {
		t.Fatalf("expected bundle to be promotable after one approval, reasons=%v", approved.Reasons)
	}
	if len(approved.Approvals) != 1 || approved.Approvals[0] != "alice" {
		t.Fatalf("approvals = %v, want [alice]", approved.Approvals)
	}
	if len(approved.Reasons) != 0 {
		t.Fatalf("reasons = %v, want empty", approved.Reasons)
	}
}

// TestMetadataOnlyPublicationGating covers §8 scenario 4.
func TestMetadataOnlyPublicationGating(t *testing.T) {
	rs := newTestRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := identity.Subject{Handle: "alice"}
	st := rs.Store()

	missingBlob := objectid.FromBytes([]byte("never uploaded"))
	manifest := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: "ghost.txt",
		Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: missingBlob}},
	}}}
	manifest.SortEntries()
	rootID, err := st.PutManifest(manifest)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}
	createdAt := now.UTC().Format(time.RFC3339Nano)
	snapID := model.ComputeSnapID(createdAt, rootID)
	if err := ops.IngestSnap(rs, alice, snapID, &model.SnapRecord{ID: snapID, CreatedAt: createdAt, RootManifest: rootID}); err != nil {
		t.Fatalf("IngestSnap: %v", err)
	}

	_, err = ops.CreatePublication(rs, alice, ops.CreatePublicationInput{
		SnapID: snapID, Scope: "main", Gate: "dev-intake", MetadataOnly: true,
	}, now, nil)
	if err == nil {
		t.Fatal("expected metadata_only publication to be rejected when the gate disallows it")
	}

	if err := rs.Update(func(repo *model.Repo) error {
		repo.GateGraph.Gates[0].AllowMetadataOnlyPublications = true
		return nil
	}); err != nil {
		t.Fatalf("enabling allow_metadata_only_publications: %v", err)
	}

	pub, err := ops.CreatePublication(rs, alice, ops.CreatePublicationInput{
		SnapID: snapID, Scope: "main", Gate: "dev-intake", MetadataOnly: true,
	}, now, nil)
	if err != nil {
		t.Fatalf("expected the publication to succeed once the gate allows metadata-only, got: %v", err)
	}
	if pub.SnapID != snapID {
		t.Fatalf("publication snap_id = %s, want %s", pub.SnapID, snapID)
	}
}

// TestDuplicatePublicationRejected covers §7/§8's same-metadata retry
// conflict.
func TestDuplicatePublicationRejected(t *testing.T) {
	rs := newTestRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice := identity.Subject{Handle: "alice"}

	_ = publishSnap(t, rs, alice, "main", "dev-intake", "a.txt", []byte("content"), now)

	st := rs.Store()
	blobID := objectid.FromBytes([]byte("content"))
	manifest := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: "a.txt",
		Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: blobID}},
	}}}
	manifest.SortEntries()
	rootID, err := st.PutManifest(manifest)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}
	createdAt := now.UTC().Format(time.RFC3339Nano)
	snapID := model.ComputeSnapID(createdAt, rootID)

	if _, err := ops.CreatePublication(rs, alice, ops.CreatePublicationInput{
		SnapID: snapID, Scope: "main", Gate: "dev-intake",
	}, now, nil); err == nil {
		t.Fatal("expected a duplicate (snap, scope, gate) publication to be rejected")
	}
}
