// ABOUTME: Clears derived documents and leftover scratch files at startup
// ABOUTME: Failures are logged and ignored

package cache

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Warm removes the cached documents in dir together with any temp files a
// previous process left behind. It never fails.
func Warm(dir string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, name := range []string{howItWorksFile, exampleFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			logger.Debug("couldn't remove cached document", "file", name, "error", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("couldn't read cache directory", "dir", dir, "error", err)
		}
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".tmp-") && !strings.HasPrefix(e.Name(), ".convert-") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			logger.Debug("couldn't remove scratch file", "file", e.Name(), "error", err)
		}
	}
}
