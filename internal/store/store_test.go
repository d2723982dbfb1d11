package store_test

import (
	"testing"

	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

func TestPutGetBlobRoundTrip(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	data := []byte("hello world")
	id := objectid.FromBytes(data)

	if err := st.PutBlob(id, data); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	got, err := st.GetBlob(id)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("GetBlob returned %q, want %q", got, data)
	}
	if !st.ExistsBlob(id) {
		t.Fatal("ExistsBlob false after PutBlob")
	}
}

func TestPutBlobRejectsHashMismatch(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	wrongID := objectid.FromBytes([]byte("something else"))
	if err := st.PutBlob(wrongID, []byte("hello world")); err == nil {
		t.Fatal("expected an error for mismatched id, got nil")
	}
	if st.ExistsBlob(wrongID) {
		t.Fatal("blob was written despite the hash mismatch")
	}
}

func TestGetBlobMissing(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	id := objectid.FromBytes([]byte("never written"))
	if _, err := st.GetBlob(id); err == nil {
		t.Fatal("expected not-found error, got nil")
	}
}

func TestPutManifestThenGetVerifiesHash(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	m := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: "a.txt",
		Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: objectid.FromBytes([]byte("a"))}},
	}}}
	m.SortEntries()
	id, err := st.PutManifest(m)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}
	got, err := st.GetManifest(id)
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Name != "a.txt" {
		t.Fatalf("unexpected manifest round-trip: %+v", got)
	}
}

func TestPutSnapRejectsNonDerivedID(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	root := objectid.FromBytes([]byte("root manifest bytes"))
	createdAt := "2026-01-01T00:00:00Z"
	wrongID := objectid.FromBytes([]byte("not the derived snap id"))
	rec := &model.SnapRecord{ID: wrongID, CreatedAt: createdAt, RootManifest: root}
	if err := st.PutSnap(wrongID, rec); err == nil {
		t.Fatal("expected PutSnap to reject an id that doesn't match compute_snap_id")
	}
}

func TestPutSnapAcceptsDerivedID(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	root := objectid.FromBytes([]byte("root manifest bytes"))
	createdAt := "2026-01-01T00:00:00Z"
	id := model.ComputeSnapID(createdAt, root)
	rec := &model.SnapRecord{ID: id, CreatedAt: createdAt, RootManifest: root}
	if err := st.PutSnap(id, rec); err != nil {
		t.Fatalf("PutSnap: %v", err)
	}
	got, err := st.GetSnap(id)
	if err != nil {
		t.Fatalf("GetSnap: %v", err)
	}
	if got.RootManifest != root {
		t.Fatalf("GetSnap root_manifest = %s, want %s", got.RootManifest, root)
	}
}

func TestMissingReportsOnlyAbsentIDs(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	present := objectid.FromBytes([]byte("present"))
	absent := objectid.FromBytes([]byte("absent"))
	if err := st.PutBlob(present, []byte("present")); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}

	missing := st.Missing(store.KindBlob, []objectid.ID{present, absent})
	if len(missing) != 1 || missing[0] != absent {
		t.Fatalf("Missing = %v, want [%s]", missing, absent)
	}
}

func TestSecondPutWithSameIDIsANoop(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	data := []byte("idempotent content")
	id := objectid.FromBytes(data)
	if err := st.PutBlob(id, data); err != nil {
		t.Fatalf("first PutBlob: %v", err)
	}
	if err := st.PutBlob(id, data); err != nil {
		t.Fatalf("second PutBlob (same content, same id): %v", err)
	}
	got, err := st.GetBlob(id)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("GetBlob = %q, want %q", got, data)
	}
}
