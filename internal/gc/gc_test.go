package gc_test

import (
	"testing"

	"github.com/inflatable-cookie/convergence-sub001/internal/gc"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

func putManifestWithBlob(t *testing.T, st *store.Store, name string, content []byte) objectid.ID {
	t.Helper()
	blobID := objectid.FromBytes(content)
	if err := st.PutBlob(blobID, content); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	m := &model.Manifest{
		Entries: []model.ManifestEntry{{
			Name: name,
			Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: blobID}},
		}},
	}
	id, err := st.PutManifest(m)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}
	return id
}

func putSnap(t *testing.T, st *store.Store, createdAt string, root objectid.ID) objectid.ID {
	t.Helper()
	id := model.ComputeSnapID(createdAt, root)
	rec := &model.SnapRecord{ID: id, CreatedAt: createdAt, RootManifest: root}
	if err := st.PutSnap(id, rec); err != nil {
		t.Fatalf("PutSnap: %v", err)
	}
	return id
}

// TestRunDeletesUnreferencedBlobAndKeepsLive exercises the sweep's core
// promise: an object that nothing reachable from a retained root
// references is deleted, while one that is referenced survives.
func TestRunDeletesUnreferencedBlobAndKeepsLive(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir, nil)
	rs, err := repostate.Load(st, "repo-1", "alice", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	liveRoot := putManifestWithBlob(t, st, "kept.txt", []byte("keep me"))
	deadRoot := putManifestWithBlob(t, st, "orphan.txt", []byte("nobody points at me"))
	_ = deadRoot // its manifest/blob are written but never referenced from repo state

	snapID := putSnap(t, st, "2026-01-01T00:00:00Z", liveRoot)

	if err := rs.Update(func(repo *model.Repo) error {
		repo.Snaps[snapID] = struct{}{}
		repo.Lanes["default"].Heads["alice"] = model.LaneHead{SnapID: snapID, UpdatedAt: "2026-01-01T00:00:00Z"}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	res, err := gc.Run(rs, gc.Options{DryRun: false, PruneMetadata: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Manifests.Kept != 1 || res.Manifests.Deleted != 1 {
		t.Fatalf("manifests: got kept=%d deleted=%d, want kept=1 deleted=1", res.Manifests.Kept, res.Manifests.Deleted)
	}
	if res.Blobs.Kept != 1 || res.Blobs.Deleted != 1 {
		t.Fatalf("blobs: got kept=%d deleted=%d, want kept=1 deleted=1", res.Blobs.Kept, res.Blobs.Deleted)
	}
	if !st.ExistsManifest(liveRoot) {
		t.Fatal("live manifest was swept")
	}
	if st.ExistsManifest(deadRoot) {
		t.Fatal("orphan manifest survived the sweep")
	}
}

// TestRunDryRunTouchesNothing checks that a dry_run pass reports the
// same deletions it would make without actually removing any file.
func TestRunDryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir, nil)
	rs, err := repostate.Load(st, "repo-1", "alice", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	deadRoot := putManifestWithBlob(t, st, "orphan.txt", []byte("nobody points at me"))

	res, err := gc.Run(rs, gc.Options{DryRun: true, PruneMetadata: false})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Manifests.Deleted != 1 {
		t.Fatalf("expected dry run to report 1 deletion, got %d", res.Manifests.Deleted)
	}
	if !st.ExistsManifest(deadRoot) {
		t.Fatal("dry run deleted a manifest")
	}
}

// TestRunRefusesDestructiveRunWithoutMetadataPruning covers §4.H's
// Refusal clause.
func TestRunRefusesDestructiveRunWithoutMetadataPruning(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir, nil)
	rs, err := repostate.Load(st, "repo-1", "alice", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := gc.Run(rs, gc.Options{DryRun: false, PruneMetadata: false}); err == nil {
		t.Fatal("expected refusal, got nil error")
	}
}

// TestRunPrunesReleaseHistoryPerChannel exercises §8 scenario 5: only
// the most recent N releases per channel feed the retention roots, and
// the rest are dropped from repo.Releases.
func TestRunPrunesReleaseHistoryPerChannel(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir, nil)
	rs, err := repostate.Load(st, "repo-1", "alice", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var roots []objectid.ID
	var bundles []*model.Bundle
	for i := 0; i < 3; i++ {
		root := putManifestWithBlob(t, st, "f.txt", []byte{byte(i)})
		roots = append(roots, root)
		b := &model.Bundle{
			ID:           "bundle-" + string(rune('a'+i)),
			Scope:        "main",
			Gate:         "dev-intake",
			RootManifest: root,
		}
		bundles = append(bundles, b)
	}

	releasedAts := []string{"2026-01-01T00:00:00Z", "2026-01-02T00:00:00Z", "2026-01-03T00:00:00Z"}
	if err := rs.Update(func(repo *model.Repo) error {
		repo.Bundles = bundles
		for i, b := range bundles {
			repo.Releases = append(repo.Releases, &model.Release{
				ID: "release-" + string(rune('a'+i)), Channel: "stable",
				BundleID: b.ID, ReleasedAt: releasedAts[i],
			})
		}
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	res, err := gc.Run(rs, gc.Options{DryRun: false, PruneMetadata: true, PruneReleasesKeepLast: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Releases.Kept != 1 || res.Releases.Deleted != 0 {
		// Releases are never written as sidecars in this test (only
		// repo.Releases in memory), so the directory sweep sees
		// nothing on disk; what matters is the in-memory trim below.
		t.Logf("release sidecar sweep: kept=%d deleted=%d (no sidecars were written in this test)", res.Releases.Kept, res.Releases.Deleted)
	}

	var gotChannel []*model.Release
	if err := rs.View(func(repo *model.Repo) error {
		gotChannel = append(gotChannel, repo.Releases...)
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(gotChannel) != 1 {
		t.Fatalf("expected 1 retained release after pruning, got %d", len(gotChannel))
	}
	if gotChannel[0].ReleasedAt != releasedAts[2] {
		t.Fatalf("expected the most recent release retained, got released_at=%s", gotChannel[0].ReleasedAt)
	}

	// Only the retained release's bundle root manifest should survive;
	// the other two bundles' manifests are unreferenced once both
	// their releases are pruned and promotion_state names neither.
	if !st.ExistsManifest(roots[2]) {
		t.Fatal("retained release's manifest was swept")
	}
	if st.ExistsManifest(roots[0]) || st.ExistsManifest(roots[1]) {
		t.Fatal("pruned releases' manifests survived the sweep")
	}
}
