package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CollectLocal walks a pair's local root and returns one observation per
// regular file passing the extension filter. Paths are stored NFC-
// normalized with forward slashes; mtimes are truncated to whole seconds
// before storage so they compare equal with WebDAV timestamps.
// Directories are never recorded. Symlinks follow WalkDir defaults (not
// followed).
func CollectLocal(ctx context.Context, localRoot string, filter *ExtensionFilter, logger *slog.Logger) ([]Observation, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(localRoot)
	if err != nil {
		return nil, fmt.Errorf("sync: local root %s: %w", localRoot, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("sync: local root %s is not a directory", localRoot)
	}

	var obs []Observation

	walkErr := filepath.WalkDir(localRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("local scan: cannot read entry, skipping",
				slog.String("path", path), slog.String("error", err.Error()))

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(localRoot, path)
		if relErr != nil {
			return fmt.Errorf("sync: relativizing %s: %w", path, relErr)
		}

		// NFC normalize so macOS NFD filenames compare equal with the
		// server's NFC paths.
		storagePath := norm.NFC.String(filepath.ToSlash(rel))

		if !filter.Allows(storagePath) {
			logger.Debug("local scan: excluded by extension filter", slog.String("path", storagePath))
			return nil
		}

		fileInfo, statErr := d.Info()
		if statErr != nil {
			logger.Warn("local scan: cannot stat file, skipping",
				slog.String("path", storagePath), slog.String("error", statErr.Error()))
			return nil
		}

		obs = append(obs, Observation{
			Path:    storagePath,
			MtimeMs: TruncateMsToSeconds(fileInfo.ModTime().UTC().UnixMilli()),
		})

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("sync: walking %s: %w", localRoot, walkErr)
	}

	logger.Debug("local snapshot collected",
		slog.String("root", localRoot), slog.Int("files", len(obs)))

	return obs, nil
}

// conflictMarker appears in conflict-copy filenames so status output can
// call them out.
const conflictMarker = "_conflict_"

// IsConflictCopy reports whether a relative path names a conflict copy.
func IsConflictCopy(relPath string) bool {
	return strings.Contains(filepath.Base(relPath), conflictMarker)
}
