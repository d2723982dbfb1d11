// Package manifestwalk implements Component B: traversal of the
// manifest -> {blob, recipe, sub-manifest} graph rooted at a directory
// manifest. It has two jobs: collecting the set of objects reachable
// from a root (used by merge persistence and by garbage collection's
// live-set computation), and validating that every object a manifest
// tree references is actually present in the store.
//
// Grounded on original_source's object_graph/walk.rs
// (collect_reachable / validate_manifest_entry_refs) and, for the
// store-reader shape, the teacher's registry/storage/driver interface
// of small single-purpose existence/fetch methods.
package manifestwalk

import (
	"fmt"

	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
)

// Reader is the subset of internal/store.Store the walker needs. Kept
// narrow so callers (merge, gc) can pass the real store without this
// package importing it, and so tests can fake a small in-memory store.
type Reader interface {
	GetManifest(id objectid.ID) (*model.Manifest, error)
	ExistsManifest(id objectid.ID) bool
	GetRecipe(id objectid.ID) (*model.FileRecipe, error)
	ExistsRecipe(id objectid.ID) bool
	ExistsBlob(id objectid.ID) bool
}

// Reachable is the set of object IDs reachable from a manifest tree,
// partitioned by kind.
type Reachable struct {
	Manifests map[objectid.ID]struct{}
	Recipes   map[objectid.ID]struct{}
	Blobs     map[objectid.ID]struct{}
}

func newReachable() *Reachable {
	return &Reachable{
		Manifests: make(map[objectid.ID]struct{}),
		Recipes:   make(map[objectid.ID]struct{}),
		Blobs:     make(map[objectid.ID]struct{}),
	}
}

// Merge folds other into r in place.
func (r *Reachable) Merge(other *Reachable) {
	for id := range other.Manifests {
		r.Manifests[id] = struct{}{}
	}
	for id := range other.Recipes {
		r.Recipes[id] = struct{}{}
	}
	for id := range other.Blobs {
		r.Blobs[id] = struct{}{}
	}
}

// Collect walks the manifest tree rooted at root and returns every
// reachable manifest, recipe, and blob ID. Superposition entries
// contribute the reachable set of each File/FileChunks/Dir variant;
// Symlink and Tombstone variants contribute nothing (§4.B). The walk is
// memoized per call via a visited-manifests set, so shared subtrees
// (the common case after a merge) are only fetched once.
func Collect(store Reader, root objectid.ID) (*Reachable, error) {
	r := newReachable()
	visited := make(map[objectid.ID]struct{})
	if err := collectManifest(store, root, r, visited); err != nil {
		return nil, err
	}
	return r, nil
}

func collectManifest(store Reader, id objectid.ID, r *Reachable, visited map[objectid.ID]struct{}) error {
	if _, ok := visited[id]; ok {
		return nil
	}
	visited[id] = struct{}{}
	r.Manifests[id] = struct{}{}

	m, err := store.GetManifest(id)
	if err != nil {
		return err
	}
	for _, entry := range m.Entries {
		if err := collectEntryKind(store, entry.Kind, r, visited); err != nil {
			return err
		}
	}
	return nil
}

func collectEntryKind(store Reader, k model.EntryKind, r *Reachable, visited map[objectid.ID]struct{}) error {
	switch k.Type {
	case model.KindFile:
		r.Blobs[k.File.Blob] = struct{}{}
	case model.KindFileChunks:
		return collectRecipe(store, k.FileChunks.Recipe, r)
	case model.KindDir:
		return collectManifest(store, k.Dir.Manifest, r, visited)
	case model.KindSymlink:
		// contributes nothing
	case model.KindSuperposition:
		for _, v := range k.Superposition.Variants {
			if err := collectVariant(store, v.Variant, r, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func collectVariant(store Reader, v model.VariantKind, r *Reachable, visited map[objectid.ID]struct{}) error {
	switch v.Type {
	case model.KindFile:
		r.Blobs[v.File.Blob] = struct{}{}
	case model.KindFileChunks:
		return collectRecipe(store, v.FileChunks.Recipe, r)
	case model.KindDir:
		return collectManifest(store, v.Dir.Manifest, r, visited)
	case model.KindSymlink, model.KindTombstone:
		// contributes nothing
	}
	return nil
}

func collectRecipe(store Reader, id objectid.ID, r *Reachable) error {
	r.Recipes[id] = struct{}{}
	recipe, err := store.GetRecipe(id)
	if err != nil {
		return err
	}
	for _, chunk := range recipe.Chunks {
		r.Blobs[chunk.BlobID] = struct{}{}
	}
	return nil
}

// ValidateRefs walks the manifest tree rooted at root and fails with an
// apierr.Validation error naming the first missing reference. When
// requireBlobs is false, blob presence is not checked — only that every
// manifest and recipe the tree names actually exists. Its caller is
// publication creation (ops.CreatePublication), which passes
// requireBlobs=false for a metadata-only publication and true
// otherwise, so a full publication's tree must be fully fetchable.
func ValidateRefs(store Reader, root objectid.ID, requireBlobs bool) error {
	visited := make(map[objectid.ID]struct{})
	return validateManifest(store, root, requireBlobs, visited)
}

func validateManifest(store Reader, id objectid.ID, requireBlobs bool, visited map[objectid.ID]struct{}) error {
	if _, ok := visited[id]; ok {
		return nil
	}
	visited[id] = struct{}{}

	if !store.ExistsManifest(id) {
		return apierr.Validation("missing manifest %s", id)
	}
	m, err := store.GetManifest(id)
	if err != nil {
		return err
	}
	for _, entry := range m.Entries {
		if err := validateEntryKind(store, entry.Kind, requireBlobs, visited); err != nil {
			return fmt.Errorf("entry %q: %w", entry.Name, err)
		}
	}
	return nil
}

func validateEntryKind(store Reader, k model.EntryKind, requireBlobs bool, visited map[objectid.ID]struct{}) error {
	switch k.Type {
	case model.KindFile:
		if requireBlobs && !store.ExistsBlob(k.File.Blob) {
			return apierr.Validation("missing blob %s", k.File.Blob)
		}
	case model.KindFileChunks:
		return validateRecipe(store, k.FileChunks.Recipe, requireBlobs)
	case model.KindDir:
		return validateManifest(store, k.Dir.Manifest, requireBlobs, visited)
	case model.KindSymlink:
		// nothing to check
	case model.KindSuperposition:
		for _, v := range k.Superposition.Variants {
			if err := validateVariant(store, v.Variant, requireBlobs, visited); err != nil {
				return fmt.Errorf("variant %q: %w", v.SourcePublicationID, err)
			}
		}
	}
	return nil
}

func validateVariant(store Reader, v model.VariantKind, requireBlobs bool, visited map[objectid.ID]struct{}) error {
	switch v.Type {
	case model.KindFile:
		if requireBlobs && !store.ExistsBlob(v.File.Blob) {
			return apierr.Validation("missing blob %s", v.File.Blob)
		}
	case model.KindFileChunks:
		return validateRecipe(store, v.FileChunks.Recipe, requireBlobs)
	case model.KindDir:
		return validateManifest(store, v.Dir.Manifest, requireBlobs, visited)
	case model.KindSymlink, model.KindTombstone:
		// nothing to check
	}
	return nil
}

// ValidateEntryRefs checks a single manifest entry's direct references
// (blob/recipe/manifest existence) without recursing into sub-manifest
// trees. This is what merge uses to validate each entry it produces
// before persisting the merged manifest: children were already checked
// when they were built or uploaded, so re-walking them here would only
// repeat work. requireBlobs=false is the normal merge-time mode, since
// a bundle's manifest tree must be constructible while blob uploads are
// still in flight; the publication-time availability check uses
// ValidateRefs instead, which does recurse.
func ValidateEntryRefs(store Reader, k model.EntryKind, requireBlobs bool) error {
	switch k.Type {
	case model.KindFile:
		if requireBlobs && !store.ExistsBlob(k.File.Blob) {
			return apierr.Validation("missing referenced blob %s", k.File.Blob)
		}
	case model.KindFileChunks:
		if !store.ExistsRecipe(k.FileChunks.Recipe) {
			return apierr.Validation("missing referenced recipe %s", k.FileChunks.Recipe)
		}
	case model.KindDir:
		if !store.ExistsManifest(k.Dir.Manifest) {
			return apierr.Validation("missing referenced manifest %s", k.Dir.Manifest)
		}
	case model.KindSymlink:
		// nothing to check
	case model.KindSuperposition:
		for _, v := range k.Superposition.Variants {
			switch v.Variant.Type {
			case model.KindFile:
				if requireBlobs && !store.ExistsBlob(v.Variant.File.Blob) {
					return apierr.Validation("missing referenced blob %s", v.Variant.File.Blob)
				}
			case model.KindFileChunks:
				if !store.ExistsRecipe(v.Variant.FileChunks.Recipe) {
					return apierr.Validation("missing referenced recipe %s", v.Variant.FileChunks.Recipe)
				}
			case model.KindDir:
				if !store.ExistsManifest(v.Variant.Dir.Manifest) {
					return apierr.Validation("missing referenced manifest %s", v.Variant.Dir.Manifest)
				}
			case model.KindSymlink, model.KindTombstone:
				// nothing to check
			}
		}
	}
	return nil
}

func validateRecipe(store Reader, id objectid.ID, requireBlobs bool) error {
	if !store.ExistsRecipe(id) {
		return apierr.Validation("missing recipe %s", id)
	}
	if !requireBlobs {
		return nil
	}
	recipe, err := store.GetRecipe(id)
	if err != nil {
		return err
	}
	for _, chunk := range recipe.Chunks {
		if !store.ExistsBlob(chunk.BlobID) {
			return apierr.Validation("missing chunk blob %s", chunk.BlobID)
		}
	}
	return nil
}
