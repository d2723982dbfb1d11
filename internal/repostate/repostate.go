// Package repostate implements Component E: the in-memory per-repo
// aggregate (users aside — that is internal/identity's job), its
// repo.json + sidecar persistence, hydration on load, and the per-field
// provenance/ACL user_id backfill that lets old repos written before
// identity tracking existed gradually pick up user_id columns.
//
// Grounded on original_source's persistence/repo_load.rs
// (load_repo_from_disk, rebuild_promotion_state, the sidecar directory
// scans) and persistence/defaults_backfill.rs (default_repo_state,
// backfill_provenance_user_ids, backfill_acl_user_ids).
package repostate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/inflatable-cookie/convergence-sub001/internal/model"
	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
	"github.com/inflatable-cookie/convergence-sub001/internal/store"
)

// RepoState wraps a repo's in-memory aggregate with the per-repo
// read/write lock the concurrency model requires: reads (manifests,
// listings) take RLock, mutations (publish, bundle, promote, release,
// pin) take Lock.
type RepoState struct {
	mu   sync.RWMutex
	repo *model.Repo
	st   *store.Store
}

// Store returns the object store backing this repo. Safe to call
// without holding View/Update — the store reference itself never
// changes after load.
func (rs *RepoState) Store() *store.Store { return rs.st }

// View runs fn with a read lock held, passing the live *model.Repo.
// Callers must not retain repo past fn's return, and must not mutate it.
func (rs *RepoState) View(fn func(repo *model.Repo) error) error {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return fn(rs.repo)
}

// Update runs fn with the write lock held, passing the live *model.Repo
// for in-place mutation.
func (rs *RepoState) Update(fn func(repo *model.Repo) error) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return fn(rs.repo)
}

// DefaultRepoState seeds a brand new repo exactly as
// defaults_backfill.rs::default_repo_state does: one lane ("default")
// whose sole member is defaultUser, one root gate ("dev-intake") that
// allows releases but not superpositions or metadata-only publications,
// and one scope ("main").
func DefaultRepoState(repoID, defaultUser string) *model.Repo {
	return &model.Repo{
		ID:    repoID,
		Owner: defaultUser,

		Readers:    map[string]struct{}{defaultUser: {}},
		Publishers: map[string]struct{}{defaultUser: {}},

		Lanes: map[string]*model.Lane{
			"default": {
				ID:          "default",
				Members:     map[string]struct{}{defaultUser: {}},
				Heads:       map[string]model.LaneHead{},
				HeadHistory: map[string][]model.LaneHead{},
			},
		},

		GateGraph: model.GateGraph{
			Version: 1,
			Gates: []model.GateDef{{
				ID:                            "dev-intake",
				Name:                          "Dev Intake",
				Upstream:                      nil,
				AllowReleases:                 true,
				AllowSuperpositions:           false,
				AllowMetadataOnlyPublications: false,
				RequiredApprovals:             0,
			}},
		},

		Scopes: map[string]struct{}{"main": {}},
		Snaps:  map[objectid.ID]struct{}{},

		PinnedBundles:  map[string]struct{}{},
		PromotionState: map[string]map[string]string{},
	}
}

// Load hydrates a repo's aggregate from st's data directory, following
// repo_load.rs::load_repo_from_disk: start from repo.json (or seed
// defaults), then re-derive the snap/bundle/promotion/release lists
// from their on-disk sidecars whenever any are present (so an operator
// restoring only the object store, without repo.json, still recovers a
// usable index), rebuild promotion_state from the promotion log, and
// finally backfill user_id fields using handleToID.
func Load(st *store.Store, repoID, defaultUser string, handleToID map[string]string) (*RepoState, error) {
	repo, err := loadBase(st, repoID, defaultUser)
	if err != nil {
		return nil, err
	}
	repo.ID = repoID

	if snaps, err := loadSnapIDs(st); err != nil {
		return nil, err
	} else if len(snaps) > 0 {
		repo.Snaps = snaps
	}

	if bundles, err := loadSidecars[model.Bundle](st.BundlesDir()); err != nil {
		return nil, err
	} else if len(bundles) > 0 {
		sort.Slice(bundles, func(i, j int) bool { return bundles[i].CreatedAt > bundles[j].CreatedAt })
		repo.Bundles = toPointers(bundles)
	}

	if promotions, err := loadSidecars[model.Promotion](st.PromotionsDir()); err != nil {
		return nil, err
	} else if len(promotions) > 0 {
		sort.Slice(promotions, func(i, j int) bool { return promotions[i].PromotedAt > promotions[j].PromotedAt })
		repo.Promotions = toPointers(promotions)
		repo.PromotionState = RebuildPromotionState(repo.Promotions)
	}

	if releases, err := loadSidecars[model.Release](st.ReleasesDir()); err != nil {
		return nil, err
	} else if len(releases) > 0 {
		sort.Slice(releases, func(i, j int) bool { return releases[i].ReleasedAt > releases[j].ReleasedAt })
		repo.Releases = toPointers(releases)
	}

	BackfillProvenanceUserIDs(repo, handleToID)
	BackfillACLUserIDs(repo, handleToID)

	return &RepoState{repo: repo, st: st}, nil
}

func loadBase(st *store.Store, repoID, defaultUser string) (*model.Repo, error) {
	data, exists, err := st.ReadRepoJSON()
	if err != nil {
		return nil, err
	}
	if !exists {
		return DefaultRepoState(repoID, defaultUser), nil
	}
	var repo model.Repo
	if err := json.Unmarshal(data, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

func loadSnapIDs(st *store.Store) (map[objectid.ID]struct{}, error) {
	entries, err := os.ReadDir(st.SnapsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[objectid.ID]struct{})
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".json")
		if len(stem) == objectid.Length {
			out[objectid.ID(stem)] = struct{}{}
		}
	}
	return out, nil
}

func loadSidecars[T any](dir string) ([]T, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []T
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func toPointers[T any](in []T) []*T {
	out := make([]*T, len(in))
	for i := range in {
		out[i] = &in[i]
	}
	return out
}

// RebuildPromotionState re-derives the scope -> to_gate -> bundle_id
// pointer map from the promotion log: the winner per (scope, to_gate)
// is whichever promotion has the greatest PromotedAt, with ties broken
// by keeping the first one encountered in promotions' existing order
// (matching rebuild_promotion_state's strict `>` comparison exactly).
func RebuildPromotionState(promotions []*model.Promotion) map[string]map[string]string {
	type winner struct {
		promotedAt string
		bundleID   string
	}
	tmp := make(map[string]map[string]winner)
	for _, p := range promotions {
		scopeEntry, ok := tmp[p.Scope]
		if !ok {
			scopeEntry = make(map[string]winner)
			tmp[p.Scope] = scopeEntry
		}
		prev, ok := scopeEntry[p.ToGate]
		if !ok || p.PromotedAt > prev.promotedAt {
			scopeEntry[p.ToGate] = winner{promotedAt: p.PromotedAt, bundleID: p.BundleID}
		}
	}

	out := make(map[string]map[string]string, len(tmp))
	for scope, m := range tmp {
		gateMap := make(map[string]string, len(m))
		for toGate, w := range m {
			gateMap[toGate] = w.bundleID
		}
		out[scope] = gateMap
	}
	return out
}

// Persist serializes repo and writes it atomically as repo.json.
func Persist(st *store.Store, repo *model.Repo) error {
	data, err := json.MarshalIndent(repo, "", "  ")
	if err != nil {
		return err
	}
	return st.WriteRepoJSON(data)
}
