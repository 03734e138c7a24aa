package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Cleanup removes cache and state files whose identifiers no longer appear in
// the current subscription list. The cache directory is authoritative for
// what exists on disk; the matching state file is removed alongside each cache
// file. It returns the number of identifiers removed. Individual deletion
// failures are logged and skipped.
func Cleanup(cacheDir, stateDir string, required map[string]bool, dryRun bool, logger *slog.Logger) (int, error) {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return 0, fmt.Errorf("list cache dir %s: %w", cacheDir, err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || required[name] {
			continue
		}
		removed++
		if dryRun {
			continue
		}
		if err := os.Remove(filepath.Join(cacheDir, name)); err != nil {
			logger.Warn("remove cache file", "id", name, "error", err)
		}
		err := os.Remove(filepath.Join(stateDir, name))
		if err != nil && !os.IsNotExist(err) {
			logger.Warn("remove state file", "id", name, "error", err)
		}
	}
	return removed, nil
}
