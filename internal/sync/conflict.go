package sync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// conflictTimeLayout formats the conflict-copy timestamp, local time,
// zero-padded.
const conflictTimeLayout = "20060102_150405"

// maxConflictSuffix bounds the numeric suffix tried during collision
// avoidance. More than 1000 collisions on one second is implausible.
const maxConflictSuffix = 1000

// conflictPath derives the conflict-copy path for a local file:
// <stem>_conflict_<yyyyMMdd_HHmmss><ext> in the same directory.
// Collisions get a numeric suffix; when all maxConflictSuffix candidates
// are taken the unsuffixed path is returned even though it exists, and the
// O_EXCL create in copyPreservingMtime then fails instead of overwriting.
func conflictPath(originalPath string, now time.Time) string {
	ext := filepath.Ext(originalPath)
	stem := originalPath[:len(originalPath)-len(ext)]
	ts := now.Format(conflictTimeLayout)

	base := stem + conflictMarker + ts + ext
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return base
	}

	for i := 1; i <= maxConflictSuffix; i++ {
		candidate := fmt.Sprintf("%s%s%s_%d%s", stem, conflictMarker, ts, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}

	return base
}

// copyPreservingMtime copies src to dst and carries the source mtime over,
// so the conflict copy uploads with the timestamp the user last saved at.
func copyPreservingMtime(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("sync: stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("sync: opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("sync: creating conflict copy %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)

		return fmt.Errorf("sync: copying to %s: %w", dst, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)

		return fmt.Errorf("sync: closing conflict copy %s: %w", dst, err)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("sync: setting mtime on %s: %w", dst, err)
	}

	return nil
}
