package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/ytm_dumper/internal/logctx"
)

// PartialSuffix marks files an interrupted run left behind.
const PartialSuffix = ".part"

// RemoveStalePartials deletes partial output files in dir that were last
// modified more than olderThan ago. It returns how many files were removed.
func RemoveStalePartials(ctx context.Context, dir string, olderThan time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil // nothing written yet
		}

		return 0, err
	}

	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PartialSuffix) {
			continue
		}

		filePath := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("Failed to stat file", "file", filePath, "err", err)

			return removed, err
		}

		if now.Sub(info.ModTime()) <= olderThan {
			continue
		}

		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete partial file", "file", filePath, "err", err)

			return removed, err
		}

		removed++

		logger.Info("Deleted partial file", "file", filePath)
	}

	return removed, nil
}
