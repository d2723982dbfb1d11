package manifestwalk_test

import (
	"encoding/json"
	"testing"

	"github.com/inflatable-cookie/convergence-sub001/internal/manifestwalk"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

func putBlob(t *testing.T, st *store.Store, content []byte) objectid.ID {
	t.Helper()
	id := objectid.FromBytes(content)
	if err := st.PutBlob(id, content); err != nil {
		t.Fatalf("PutBlob: %v", err)
	}
	return id
}

func putRecipe(t *testing.T, st *store.Store, recipe *model.FileRecipe) objectid.ID {
	t.Helper()
	data, err := json.Marshal(recipe)
	if err != nil {
		t.Fatalf("marshal recipe: %v", err)
	}
	id := objectid.FromBytes(data)
	if err := st.PutRecipeBytes(id, data); err != nil {
		t.Fatalf("PutRecipeBytes: %v", err)
	}
	return id
}

func TestCollectWalksSubdirectoriesAndChunkedFiles(t *testing.T) {
	st := store.New(t.TempDir(), nil)

	leafBlob := putBlob(t, st, []byte("leaf content"))
	chunkBlob := putBlob(t, st, []byte("chunk content"))

	recipe := &model.FileRecipe{Version: 1, TotalSize: int64(len("chunk content")), Chunks: []model.ChunkSpec{
		{BlobID: chunkBlob, Size: int64(len("chunk content"))},
	}}
	recipeID := putRecipe(t, st, recipe)

	subManifest := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: "leaf.txt",
		Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: leafBlob}},
	}}}
	subManifest.SortEntries()
	subID, err := st.PutManifest(subManifest)
	if err != nil {
		t.Fatalf("PutManifest sub: %v", err)
	}

	root := &model.Manifest{Entries: []model.ManifestEntry{
		{Name: "sub", Kind: model.EntryKind{Type: model.KindDir, Dir: &model.DirRef{Manifest: subID}}},
		{Name: "chunked.bin", Kind: model.EntryKind{Type: model.KindFileChunks, FileChunks: &model.FileChunksRef{Recipe: recipeID}}},
	}}
	root.SortEntries()
	rootID, err := st.PutManifest(root)
	if err != nil {
		t.Fatalf("PutManifest root: %v", err)
	}

	reachable, err := manifestwalk.Collect(st, rootID)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, ok := reachable.Manifests[rootID]; !ok {
		t.Error("root manifest missing from reachable set")
	}
	if _, ok := reachable.Manifests[subID]; !ok {
		t.Error("sub manifest missing from reachable set")
	}
	if _, ok := reachable.Recipes[recipeID]; !ok {
		t.Error("recipe missing from reachable set")
	}
	if _, ok := reachable.Blobs[leafBlob]; !ok {
		t.Error("leaf blob missing from reachable set")
	}
	if _, ok := reachable.Blobs[chunkBlob]; !ok {
		t.Error("chunk blob missing from reachable set")
	}
}

func TestCollectSuperpositionSkipsSymlinkAndTombstoneVariants(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	fileBlob := putBlob(t, st, []byte("variant a"))

	root := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: "conflicted",
		Kind: model.EntryKind{Type: model.KindSuperposition, Superposition: &model.SuperpositionRef{
			Variants: []model.SuperpositionVariant{
				{SourcePublicationID: "pub-a", Variant: model.VariantKind{Type: model.KindFile, File: &model.FileRef{Blob: fileBlob}}},
				{SourcePublicationID: "pub-b", Variant: model.VariantKind{Type: model.KindSymlink, Symlink: &model.SymlinkRef{Target: "elsewhere"}}},
				{SourcePublicationID: "pub-c", Variant: model.VariantKind{Type: model.KindTombstone}},
			},
		}},
	}}}
	root.SortEntries()
	rootID, err := st.PutManifest(root)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}

	reachable, err := manifestwalk.Collect(st, rootID)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if _, ok := reachable.Blobs[fileBlob]; !ok {
		t.Error("file variant's blob should be reachable")
	}
	if len(reachable.Blobs) != 1 {
		t.Errorf("expected exactly one reachable blob (symlink/tombstone contribute nothing), got %d", len(reachable.Blobs))
	}
}

func TestValidateRefsFailsOnMissingBlobWhenRequired(t *testing.T) {
	st := store.New(t.TempDir(), nil)
	missingBlob := objectid.FromBytes([]byte("never uploaded"))

	root := &model.Manifest{Entries: []model.ManifestEntry{{
		Name: "f.txt",
		Kind: model.EntryKind{Type: model.KindFile, File: &model.FileRef{Blob: missingBlob}},
	}}}
	root.SortEntries()
	rootID, err := st.PutManifest(root)
	if err != nil {
		t.Fatalf("PutManifest: %v", err)
	}

	if err := manifestwalk.ValidateRefs(st, rootID, true); err == nil {
		t.Fatal("expected ValidateRefs to fail with require_blobs=true and a missing blob")
	}
	if err := manifestwalk.ValidateRefs(st, rootID, false); err != nil {
		t.Fatalf("ValidateRefs with require_blobs=false should tolerate the missing blob, got: %v", err)
	}
}
