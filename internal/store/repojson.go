package store

import (
	"os"
	"path/filepath"
)

// RepoJSONPath is the path of the mutable per-repo aggregate snapshot.
func (s *Store) RepoJSONPath() string { return filepath.Join(s.root, "repo.json") }

// WriteRepoJSON atomically (re)writes the repo.json snapshot.
func (s *Store) WriteRepoJSON(data []byte) error {
	return writeAtomic(s.RepoJSONPath(), data)
}

// ReadRepoJSON reads the repo.json snapshot, reporting (nil, false, nil)
// if it does not exist yet (a brand new repo).
func (s *Store) ReadRepoJSON() ([]byte, bool, error) {
	data, err := os.ReadFile(s.RepoJSONPath())
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// WritePromotionSidecar and WriteReleaseSidecar persist the immutable
// per-record JSON sidecars alongside repo.json — write-once, since
// promotions and releases never change after creation.
//
// WriteBundleSidecar always (re)writes: a bundle's id never changes,
// but its Approvals/Promotable/Reasons fields do (§3 Lifecycles), so
// its sidecar must track the in-memory record rather than freeze at
// first write.
func (s *Store) WriteBundleSidecar(id string, data []byte) error {
	return writeAtomic(filepath.Join(s.BundlesDir(), id+".json"), data)
}

func (s *Store) WritePromotionSidecar(id string, data []byte) error {
	return writeIfAbsent(filepath.Join(s.PromotionsDir(), id+".json"), data)
}

func (s *Store) WriteReleaseSidecar(id string, data []byte) error {
	return writeIfAbsent(filepath.Join(s.ReleasesDir(), id+".json"), data)
}
