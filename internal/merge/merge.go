// Package merge implements Component C: coalescing the root manifests
// of a set of publications into a single merged directory tree,
// producing Superposition entries wherever the inputs disagree, and
// computing a bundle's promotability against its target gate.
//
// Grounded on original_source's
// object_graph/merge.rs::merge_dir_manifests (and its refactor in
// object_graph/merge/manifest_merge/mod.rs, same algorithm split into
// named helpers) for the coalescence rules, and
// merge.rs::compute_promotability for the promotability predicate.
package merge

import (
	"sort"

	"github.com/inflatable-cookie/convergence-sub001/internal/manifestwalk"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
)

// Store is the subset of internal/store.Store the merge needs: reading
// existing manifests, persisting the merged result, and validating the
// merged manifest's entry references before it is written.
type Store interface {
	manifestwalk.Reader
	PutManifest(m *model.Manifest) (objectid.ID, error)
}

// Input is one publication's contribution to a merge: its root
// manifest, keyed by the publication that contributed it.
type Input struct {
	PublicationID string
	RootManifest  objectid.ID
}

// Coalesce merges the root manifests named by inputs into a single
// tree and returns the merged root's ID. Per §3, the result is fully
// deterministic in the inputs' content and publication IDs, independent
// of input order — inputs are sorted by PublicationID before merging,
// matching coalesce_root_manifest's own sort. A single input yields its
// own root manifest unchanged.
func Coalesce(store Store, repoID string, inputs []Input) (objectid.ID, error) {
	if len(inputs) == 1 {
		return inputs[0].RootManifest, nil
	}
	sorted := append([]Input(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PublicationID < sorted[j].PublicationID })
	return mergeDirManifests(store, sorted)
}

func mergeDirManifests(store Store, inputs []Input) (objectid.ID, error) {
	inputMaps := make([]map[string]model.EntryKind, len(inputs))
	for i, in := range inputs {
		m, err := store.GetManifest(in.RootManifest)
		if err != nil {
			return "", err
		}
		mp := make(map[string]model.EntryKind, len(m.Entries))
		for _, e := range m.Entries {
			mp[e.Name] = e.Kind
		}
		inputMaps[i] = mp
	}

	nameSet := make(map[string]struct{})
	for _, mp := range inputMaps {
		for name := range mp {
			nameSet[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	outEntries := make([]model.ManifestEntry, 0, len(names))
	for _, name := range names {
		kinds := make([]namedEntryHelper, len(inputs))
		for i, in := range inputs {
			if k, ok := inputMaps[i][name]; ok {
				kk := k
				kinds[i] = namedEntryHelper{pubID: in.PublicationID, kind: &kk}
			} else {
				kinds[i] = namedEntryHelper{pubID: in.PublicationID, kind: nil}
			}
		}

		allPresent := true
		for _, ne := range kinds {
			if ne.kind == nil {
				allPresent = false
				break
			}
		}

		if allPresent {
			if entry, ok, err := tryMergeDir(store, name, kinds); err != nil {
				return "", err
			} else if ok {
				outEntries = append(outEntries, entry)
				continue
			}
			if entry, ok := tryMergeIdenticalScalar(name, kinds); ok {
				outEntries = append(outEntries, entry)
				continue
			}
		}

		outEntries = append(outEntries, superpositionEntry(name, kinds))
	}

	merged := &model.Manifest{Version: 1, Entries: outEntries}
	for _, entry := range merged.Entries {
		if err := manifestwalk.ValidateEntryRefs(store, entry.Kind, false); err != nil {
			return "", err
		}
	}

	return store.PutManifest(merged)
}

type namedEntryHelper = struct {
	pubID string
	kind  *model.EntryKind
}

func tryMergeDir(store Store, name string, kinds []namedEntryHelper) (model.ManifestEntry, bool, error) {
	for _, ne := range kinds {
		if ne.kind.Type != model.KindDir {
			return model.ManifestEntry{}, false, nil
		}
	}

	childInputs := make([]Input, len(kinds))
	for i, ne := range kinds {
		childInputs[i] = Input{PublicationID: ne.pubID, RootManifest: ne.kind.Dir.Manifest}
	}
	mergedChild, err := mergeDirManifests(store, childInputs)
	if err != nil {
		return model.ManifestEntry{}, false, err
	}
	return model.ManifestEntry{
		Name: name,
		Kind: model.EntryKind{Type: model.KindDir, Dir: &model.DirRef{Manifest: mergedChild}},
	}, true, nil
}

func tryMergeIdenticalScalar(name string, kinds []namedEntryHelper) (model.ManifestEntry, bool) {
	first := *kinds[0].kind
	if first.Type != model.KindFile && first.Type != model.KindFileChunks && first.Type != model.KindSymlink {
		return model.ManifestEntry{}, false
	}

	for _, ne := range kinds {
		if !entryKindsEqual(*ne.kind, first) {
			return model.ManifestEntry{}, false
		}
	}
	return model.ManifestEntry{Name: name, Kind: first}, true
}

func entryKindsEqual(a, b model.EntryKind) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case model.KindFile:
		return *a.File == *b.File
	case model.KindFileChunks:
		return *a.FileChunks == *b.FileChunks
	case model.KindSymlink:
		return *a.Symlink == *b.Symlink
	default:
		return false
	}
}

// superpositionEntry builds the conflict entry for name given each
// input's view (nil kind meaning the name is absent from that input).
// Nested superpositions and absent entries both collapse to Tombstone:
// this is intentional and matches the original implementation exactly
// (a superposition inside a superposition is not resolved further, it
// forces the conflict back up to explicit human resolution).
func superpositionEntry(name string, kinds []namedEntryHelper) model.ManifestEntry {
	variants := make([]model.SuperpositionVariant, 0, len(kinds))
	for _, ne := range kinds {
		variants = append(variants, model.SuperpositionVariant{
			SourcePublicationID: ne.pubID,
			Variant:             toVariantKind(ne.kind),
		})
	}
	model.SortVariants(variants)
	return model.ManifestEntry{
		Name: name,
		Kind: model.EntryKind{Type: model.KindSuperposition, Superposition: &model.SuperpositionRef{Variants: variants}},
	}
}

func toVariantKind(k *model.EntryKind) model.VariantKind {
	if k == nil {
		return model.VariantKind{Type: model.KindTombstone}
	}
	switch k.Type {
	case model.KindFile:
		return model.VariantKind{Type: model.KindFile, File: k.File}
	case model.KindFileChunks:
		return model.VariantKind{Type: model.KindFileChunks, FileChunks: k.FileChunks}
	case model.KindDir:
		return model.VariantKind{Type: model.KindDir, Dir: k.Dir}
	case model.KindSymlink:
		return model.VariantKind{Type: model.KindSymlink, Symlink: k.Symlink}
	default:
		// Superposition (nested) collapses to Tombstone, per above.
		return model.VariantKind{Type: model.KindTombstone}
	}
}

// ComputePromotability evaluates a bundle's promotability against gate,
// returning the fixed-order list of failing reasons (empty when
// promotable). The reason order is superpositions_present before
// approvals_missing, matching compute_promotability exactly.
func ComputePromotability(gate model.GateDef, hasSuperpositions bool, approvalCount int) (bool, []string) {
	var reasons []string
	if hasSuperpositions && !gate.AllowSuperpositions {
		reasons = append(reasons, "superpositions_present")
	}
	if approvalCount < gate.RequiredApprovals {
		reasons = append(reasons, "approvals_missing")
	}
	return len(reasons) == 0, reasons
}

// HasSuperpositions reports whether the manifest tree rooted at root
// contains a superposition entry at any depth: it checks every entry of
// the root manifest and recurses into each Dir entry's manifest through
// the reader.
func HasSuperpositions(store manifestwalk.Reader, root objectid.ID) (bool, error) {
	m, err := store.GetManifest(root)
	if err != nil {
		return false, err
	}
	for _, e := range m.Entries {
		if e.Kind.Type == model.KindSuperposition {
			return true, nil
		}
		if e.Kind.Type == model.KindDir {
			has, err := HasSuperpositions(store, e.Kind.Dir.Manifest)
			if err != nil {
				return false, err
			}
			if has {
				return true, nil
			}
		}
	}
	return false, nil
}
