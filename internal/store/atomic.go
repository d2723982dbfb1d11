package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// writeIfAbsent writes data to path atomically (temp file + rename) only
// if path does not already exist. Because every object is content
// addressed, a concurrent writer racing us to create the same path is
// writing bytewise-identical content (§5), so losing the race is not an
// error — we just discard our temp file.
func writeIfAbsent(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	tmp := fmt.Sprintf("%s.%d.%s.tmp", path, os.Getpid(), uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		if _, statErr := os.Stat(path); statErr == nil {
			// Lost the race to an identical writer; our temp file is
			// redundant, not an error.
			return nil
		}
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// writeAtomic always (re)writes path atomically, used for the mutable
// repo.json snapshot rather than immutable CAS objects.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp := fmt.Sprintf("%s.%d.%s.tmp", path, os.Getpid(), uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
