package merge_test

import (
	"testing"

	"github.com/inflatable-cookie/convergence-sub001/internal/merge"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

func putFileManifest(t *testing.T, st *store.Store, name string, content []byte) objectid.ID {
	t.Helper()
	blobID := objectid.FromBytes(content)
	if err := st.PutBlob(blobID, content); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	m := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: name,
		Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: blobID}},
	}}}
	m.SortEntries()
	id, err := st.PutManifest(m)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}
	return id
}

// TestCoalesceSingleInputIsIdempotent covers §8's merge idempotence
// property: merging one publication yields its own root unchanged.
func TestCoalesceSingleInputIsIdempotent(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	root := putFileManifest(t, st, "a.txt", []byte("one\n"))

	got, err := merge.Coalesce(st, "repo-1", []merge.Input{{PublicationID: "pub-a", RootManifest: root}})
	if err != nil {
		t.Fatalf("Coalesce: %v", err)
	}
	if got != root {
		t.Fatalf("Coalesce of a single input = %s, want %s (the input's own root)", got, root)
	}
}

// TestCoalesceIsOrderIndependent covers §8's merge determinism
// property: merge(P1, P2) = merge(P2, P1).
func TestCoalesceIsOrderIndependent(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	rootA := putFileManifest(t, st, "a.txt", []byte("one\n"))
	rootB := putFileManifest(t, st, "b.txt", []byte("two\n"))

	forward, err := merge.Coalesce(st, "repo-1", []merge.Input{
		{PublicationID: "pub-a", RootManifest: rootA},
		{PublicationID: "pub-b", RootManifest: rootB},
	})
	if err != nil {
		t.Fatalf("Coalesce forward: %v", err)
	}
	backward, err := merge.Coalesce(st, "repo-1", []merge.Input{
		{PublicationID: "pub-b", RootManifest: rootB},
		{PublicationID: "pub-a", RootManifest: rootA},
	})
	if err != nil {
		t.Fatalf("Coalesce backward: %v", err)
	}
	if forward != backward {
		t.Fatalf("Coalesce is order-dependent: forward=%s backward=%s", forward, backward)
	}
}

// TestCoalesceConflictingEntryProducesSuperposition covers §8 scenario
// 1: two publications disagreeing on the same path's content.
func TestCoalesceConflictingEntryProducesSuperposition(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	rootA := putFileManifest(t, st, "a.txt", []byte("from publication a"))
	rootB := putFileManifest(t, st, "a.txt", []byte("from publication b"))

	mergedID, err := merge.Coalesce(st, "repo-1", []merge.Input{
		{PublicationID: "pub-a", RootManifest: rootA},
		{PublicationID: "pub-b", RootManifest: rootB},
	})
	if err != nil {
		t.Fatalf("Coalesce: %v", err)
	}

	merged, err := st.GetManifest(mergedID)
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if len(merged.Entries) != 1 {
		t.Fatalf("expected exactly one merged entry, got %d", len(merged.Entries))
	}
	entry := merged.Entries[0]
	if entry.Kind.Type != model.KindSuperposition {
		t.Fatalf("expected a superposition entry, got kind %q", entry.Kind.Type)
	}
	if len(entry.Kind.Superposition.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(entry.Kind.Superposition.Variants))
	}
	if entry.Kind.Superposition.Variants[0].SourcePublicationID != "pub-a" {
		t.Fatalf("variants not sorted by source_publication_id: got %+v", entry.Kind.Superposition.Variants)
	}

	has, err := merge.HasSuperpositions(st, mergedID)
	if err != nil {
		t.Fatalf("HasSuperpositions: %v", err)
	}
	if !has {
		t.Fatal("HasSuperpositions should report true for a merged tree containing a conflict")
	}
}

// TestCoalesceIdenticalEntryEmittedUnchanged covers §4.C step 1b:
// structurally identical entries across every input collapse to one
// plain entry, not a superposition.
func TestCoalesceIdenticalEntryEmittedUnchanged(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	rootA := putFileManifest(t, st, "a.txt", []byte("same content"))
	rootB := putFileManifest(t, st, "a.txt", []byte("same content"))

	mergedID, err := merge.Coalesce(st, "repo-1", []merge.Input{
		{PublicationID: "pub-a", RootManifest: rootA},
		{PublicationID: "pub-b", RootManifest: rootB},
	})
	if err != nil {
		t.Fatalf("Coalesce: %v", err)
	}
	merged, err := st.GetManifest(mergedID)
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if len(merged.Entries) != 1 || merged.Entries[0].Kind.Type != model.KindFile {
		t.Fatalf("expected one plain file entry, got %+v", merged.Entries)
	}
}

func TestComputePromotability(t *testing.T) {
	gate := model.GateDef{AllowSuperpositions: false, RequiredApprovals: 1}

	promotable, reasons := merge.ComputePromotability(gate, true, 0)
	if promotable {
		t.Fatal("expected not promotable with superpositions present and zero approvals")
	}
	if len(reasons) != 2 || reasons[0] != "superpositions_present" || reasons[1] != "approvals_missing" {
		t.Fatalf("unexpected reasons order: %v", reasons)
	}

	promotable, reasons = merge.ComputePromotability(gate, false, 1)
	if !promotable || len(reasons) != 0 {
		t.Fatalf("expected promotable with no superpositions and enough approvals, got promotable=%v reasons=%v", promotable, reasons)
	}
}
