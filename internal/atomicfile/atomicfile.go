// Package atomicfile writes files via a temp-file-plus-rename so that
// readers never observe a partially-written target.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Write writes data to path by creating parent directories as needed,
// writing to a sibling temp file, and renaming it over path. On any error
// before the rename, the temp file is removed on a best-effort basis.
//
// Rename must stay on the same filesystem as path; crossing filesystems
// is a caller bug, not something Write guards against.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create parent directory %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}

	return nil
}

// Remove deletes path if it exists, ignoring a not-exist error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
