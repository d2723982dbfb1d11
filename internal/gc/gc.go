// Package gc implements Component H: the conservative garbage
// collector. It computes a retention-rooted live set over every object
// kind and sweeps the on-disk directories for anything outside it.
//
// Grounded on original_source's handlers_gc.rs (retention root
// enumeration, release-history pruning as an independent composable
// input, sweep_ids) and, for the directory-scan/delete mechanics, the
// teacher's registry/storage/garbagecollect.go mark-and-sweep shape,
// generalized from a manifest/blob mark phase to this system's
// bundle/publication/snap reachability graph.
package gc

import (
	"github.com/inflatable-cookie/convergence-sub001/internal/apierr"
	"github.com/inflatable-cookie/convergence-sub001/internal/manifestwalk"
	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/repostate"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

// Options configures one GC invocation (§4.H, §6 POST /repos/:id/gc).
type Options struct {
	DryRun                bool
	PruneMetadata         bool
	PruneReleasesKeepLast int // 0 means "no release-history pruning"
}

// CategoryResult mirrors store.SweepResult for one swept category.
type CategoryResult = store.SweepResult

// Result is the per-category kept/deleted counts a GC run reports.
type Result struct {
	Blobs         CategoryResult
	Manifests     CategoryResult
	Recipes       CategoryResult
	Snaps         CategoryResult
	Bundles       CategoryResult
	Releases      CategoryResult
	DryRun        bool
	PruneMetadata bool
}

// Run executes one GC pass against rs, holding the repo write lock for
// its entire duration (§5: "Directory scans during GC hold the write
// lock"). Per §4.H's Refusal clause, a destructive full sweep
// (DryRun=false) requires PruneMetadata=true — otherwise metadata
// (snaps/bundles/releases) would outlive the objects the sweep just
// deleted, leaving dangling references; such a call is rejected before
// anything is touched.
func Run(rs *repostate.RepoState, opts Options) (Result, error) {
	if !opts.DryRun && !opts.PruneMetadata {
		return Result{}, apierr.Validation("gc: dry_run=false requires prune_metadata=true (or pass dry_run=true)")
	}

	var result Result
	err := rs.Update(func(repo *model.Repo) error {
		st := rs.Store()

		retainedReleases := pruneReleaseHistory(repo.Releases, opts.PruneReleasesKeepLast)

		roots := retentionRootBundles(repo, retainedReleases)

		live, err := computeLiveSets(st, repo, roots)
		if err != nil {
			return err
		}

		result.DryRun = opts.DryRun
		result.PruneMetadata = opts.PruneMetadata

		blobs, err := store.Sweep(st.BlobsDir(), "", live.blobs, opts.DryRun)
		if err != nil {
			return apierr.Internal(err)
		}
		result.Blobs = blobs

		manifests, err := store.Sweep(st.ManifestsDir(), "json", live.manifests, opts.DryRun)
		if err != nil {
			return apierr.Internal(err)
		}
		result.Manifests = manifests

		recipes, err := store.Sweep(st.RecipesDir(), "json", live.recipes, opts.DryRun)
		if err != nil {
			return apierr.Internal(err)
		}
		result.Recipes = recipes

		if !opts.PruneMetadata {
			return persist(rs, repo)
		}

		snaps, err := store.Sweep(st.SnapsDir(), "json", live.snaps, opts.DryRun)
		if err != nil {
			return apierr.Internal(err)
		}
		result.Snaps = snaps

		keepBundleIDs := idSetFromStrings(roots)
		bundles, err := store.Sweep(st.BundlesDir(), "json", keepBundleIDs, opts.DryRun)
		if err != nil {
			return apierr.Internal(err)
		}
		result.Bundles = bundles

		keepReleaseIDs := make(map[objectid.ID]struct{}, len(retainedReleases))
		for _, r := range retainedReleases {
			keepReleaseIDs[objectid.ID(r.ID)] = struct{}{}
		}
		releasesRes, err := store.Sweep(st.ReleasesDir(), "json", keepReleaseIDs, opts.DryRun)
		if err != nil {
			return apierr.Internal(err)
		}
		result.Releases = releasesRes

		if !opts.DryRun {
			repo.Releases = retainedReleases
			repo.Snaps = intersectSnapSet(repo.Snaps, live.snaps)
			repo.Bundles = filterBundles(repo.Bundles, keepBundleIDs)
		}

		return persist(rs, repo)
	})
	return result, err
}

func persist(rs *repostate.RepoState, repo *model.Repo) error {
	if err := repostate.Persist(rs.Store(), repo); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// pruneReleaseHistory groups releases by channel and keeps the
// keepLast most recent (by ReleasedAt, descending) per channel.
// keepLast <= 0 disables pruning: every release is retained.
func pruneReleaseHistory(releases []*model.Release, keepLast int) []*model.Release {
	if keepLast <= 0 {
		return releases
	}

	byChannel := make(map[string][]*model.Release)
	for _, r := range releases {
		byChannel[r.Channel] = append(byChannel[r.Channel], r)
	}

	var kept []*model.Release
	for _, group := range byChannel {
		sorted := append([]*model.Release(nil), group...)
		sortReleasesDesc(sorted)
		if len(sorted) > keepLast {
			sorted = sorted[:keepLast]
		}
		kept = append(kept, sorted...)
	}
	return kept
}

func sortReleasesDesc(rs []*model.Release) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j-1].ReleasedAt < rs[j].ReleasedAt; j-- {
			rs[j-1], rs[j] = rs[j], rs[j-1]
		}
	}
}

// retentionRootBundles computes the retained bundle ID set: pinned
// bundles, every retained release's bundle, and every current
// promotion_state pointer (§4.H Retention roots).
func retentionRootBundles(repo *model.Repo, retainedReleases []*model.Release) map[string]struct{} {
	roots := make(map[string]struct{})
	for id := range repo.PinnedBundles {
		roots[id] = struct{}{}
	}
	for _, r := range retainedReleases {
		roots[r.BundleID] = struct{}{}
	}
	for _, gateMap := range repo.PromotionState {
		for _, bundleID := range gateMap {
			roots[bundleID] = struct{}{}
		}
	}
	return roots
}

type liveSets struct {
	publications map[string]struct{}
	snaps        map[objectid.ID]struct{}
	blobs        map[objectid.ID]struct{}
	manifests    map[objectid.ID]struct{}
	recipes      map[objectid.ID]struct{}
}

// computeLiveSets implements §4.H's "Live object sets" paragraph: seed
// from retained bundles (their input publications and root-manifest
// reachability), then each retained publication's snap, then every
// lane head and head-history snap, then walk every retained snap's
// root manifest.
func computeLiveSets(st *store.Store, repo *model.Repo, retainedBundleIDs map[string]struct{}) (liveSets, error) {
	sets := liveSets{
		publications: make(map[string]struct{}),
		snaps:        make(map[objectid.ID]struct{}),
		blobs:        make(map[objectid.ID]struct{}),
		manifests:    make(map[objectid.ID]struct{}),
		recipes:      make(map[objectid.ID]struct{}),
	}

	for _, bundle := range repo.Bundles {
		if _, keep := retainedBundleIDs[bundle.ID]; !keep {
			continue
		}
		for _, pid := range bundle.InputPublications {
			sets.publications[pid] = struct{}{}
		}
		reachable, err := manifestwalk.Collect(st, bundle.RootManifest)
		if err != nil {
			return liveSets{}, err
		}
		for id := range reachable.Blobs {
			sets.blobs[id] = struct{}{}
		}
		for id := range reachable.Manifests {
			sets.manifests[id] = struct{}{}
		}
		for id := range reachable.Recipes {
			sets.recipes[id] = struct{}{}
		}
	}

	for _, pub := range repo.Publications {
		if _, keep := sets.publications[pub.ID]; keep {
			sets.snaps[pub.SnapID] = struct{}{}
		}
	}

	for _, lane := range repo.Lanes {
		for _, head := range lane.Heads {
			sets.snaps[head.SnapID] = struct{}{}
		}
		for _, history := range lane.HeadHistory {
			for _, head := range history {
				sets.snaps[head.SnapID] = struct{}{}
			}
		}
	}

	for snapID := range sets.snaps {
		rec, err := st.GetSnap(snapID)
		if err != nil {
			return liveSets{}, err
		}
		reachable, err := manifestwalk.Collect(st, rec.RootManifest)
		if err != nil {
			return liveSets{}, err
		}
		for id := range reachable.Blobs {
			sets.blobs[id] = struct{}{}
		}
		for id := range reachable.Manifests {
			sets.manifests[id] = struct{}{}
		}
		for id := range reachable.Recipes {
			sets.recipes[id] = struct{}{}
		}
	}

	return sets, nil
}

func idSetFromStrings(s map[string]struct{}) map[objectid.ID]struct{} {
	out := make(map[objectid.ID]struct{}, len(s))
	for id := range s {
		out[objectid.ID(id)] = struct{}{}
	}
	return out
}

func intersectSnapSet(all, live map[objectid.ID]struct{}) map[objectid.ID]struct{} {
	out := make(map[objectid.ID]struct{}, len(live))
	for id := range all {
		if _, ok := live[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func filterBundles(bundles []*model.Bundle, keep map[objectid.ID]struct{}) []*model.Bundle {
	var out []*model.Bundle
	for _, b := range bundles {
		if _, ok := keep[objectid.ID(b.ID)]; ok {
			out = append(out, b)
		}
	}
	return out
}
