package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/inflatable-cookie/convergence-sub001/internal/objectid"
)

// SweepResult summarizes one directory's sweep pass.
type SweepResult struct {
	Kept    int
	Deleted int
}

// Sweep scans dir for files whose 64-hex-derived ID is not present in
// keep, deleting them unless dryRun is set. ext, when non-empty, is
// stripped from the filename before deriving the ID (objects stored
// with a suffix, e.g. "<id>.json"); files not matching ext are ignored.
// Grounded on original_source's handlers_gc.rs::sweep_ids.
func Sweep(dir string, ext string, keep map[objectid.ID]struct{}, dryRun bool) (SweepResult, error) {
	var res SweepResult

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		id := name
		if ext != "" {
			if !strings.HasSuffix(name, "."+ext) {
				continue
			}
			id = strings.TrimSuffix(name, "."+ext)
		}
		if len(id) != objectid.Length {
			continue
		}
		oid := objectid.ID(id)
		if !oid.Valid() {
			continue
		}

		if _, ok := keep[oid]; ok {
			res.Kept++
			continue
		}

		res.Deleted++
		if !dryRun {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return res, err
			}
		}
	}
	return res, nil
}
