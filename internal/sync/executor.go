package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ncdav/ncdav-sync/internal/davpath"
)

// phaseWorkers caps the parallel I/O tasks inside one phase. Chosen low
// deliberately so home-hosted Nextcloud instances are not overwhelmed.
const phaseWorkers = 10

// Executor runs classified actions against WebDAV and the filesystem and
// commits the results of each phase to the state store in a single
// transaction. A failed action is logged and leaves its row untouched;
// the path retries on the next pass.
type Executor struct {
	store  *Store
	client DavClient
	logger *slog.Logger

	// excludeName is a filename never copied by conflict materialization
	// (the state store database).
	excludeName string

	// now is the clock used for conflict timestamps.
	now func() time.Time
}

// NewExecutor creates an Executor. excludeName is the state-store
// filename to skip during conflict materialization.
func NewExecutor(store *Store, client DavClient, excludeName string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		store:       store,
		client:      client,
		logger:      logger,
		excludeName: excludeName,
		now:         time.Now,
	}
}

// phaseResult tallies one phase's outcome.
type phaseResult struct {
	succeeded int
	failed    int
}

// runConflicts materializes conflicts: each conflicting local file is
// copied to a timestamped sibling, the copy is registered as a fresh
// local observation, and the original path is left for the download
// phase. The observations commit before this function returns so the
// download phase sees them.
func (x *Executor) runConflicts(ctx context.Context, pair *Pair, entries []Entry, capturedAt int64) (phaseResult, error) {
	var result phaseResult

	var obs []Observation

	for i := range entries {
		e := &entries[i]

		if filepath.Base(e.Path) == x.excludeName {
			x.logger.Debug("conflict: state store file excluded", slog.String("path", e.Path))
			continue
		}

		localPath := davpath.LocalPath(pair.LocalRoot, e.Path)
		copyPath := conflictPath(localPath, x.now())

		if err := copyPreservingMtime(localPath, copyPath); err != nil {
			x.logger.Warn("conflict: materialization failed",
				slog.String("path", e.Path), slog.String("error", err.Error()))

			result.failed++

			continue
		}

		info, err := os.Stat(copyPath)
		if err != nil {
			x.logger.Warn("conflict: cannot stat copy",
				slog.String("path", copyPath), slog.String("error", err.Error()))

			result.failed++

			continue
		}

		rel, err := filepath.Rel(pair.LocalRoot, copyPath)
		if err != nil {
			return result, fmt.Errorf("sync: relativizing conflict copy %s: %w", copyPath, err)
		}

		obs = append(obs, Observation{
			Path:    filepath.ToSlash(rel),
			MtimeMs: TruncateMsToSeconds(info.ModTime().UTC().UnixMilli()),
		})

		x.logger.Info("conflict materialized",
			slog.Int64("pair_id", pair.ID),
			slog.String("path", e.Path),
			slog.String("copy", filepath.Base(copyPath)),
		)

		result.succeeded++
	}

	if err := x.store.ObserveLocalBatch(ctx, pair.ID, obs, capturedAt); err != nil {
		return result, err
	}

	return result, nil
}

// runDownloads fetches each entry's remote content into a temporary file
// in the target directory, moves it into place, and stamps the server
// mtime. Successes commit in one transaction after the phase drains.
func (x *Executor) runDownloads(ctx context.Context, pair *Pair, entries []Entry) (phaseResult, error) {
	results, failed, err := x.dispatch(ctx, entries, func(ctx context.Context, e *Entry) (PathMtime, error) {
		if err := x.downloadOne(ctx, pair, e); err != nil {
			return PathMtime{}, err
		}

		return PathMtime{Path: e.Path, MtimeMs: e.RemoteMtime}, nil
	})
	if err != nil {
		return phaseResult{failed: failed}, err
	}

	if err := x.store.MarkDownloadedBatch(ctx, pair.ID, results); err != nil {
		return phaseResult{succeeded: len(results), failed: failed}, err
	}

	return phaseResult{succeeded: len(results), failed: failed}, nil
}

// downloadOne streams one remote file to disk.
func (x *Executor) downloadOne(ctx context.Context, pair *Pair, e *Entry) error {
	url := davpath.RelativeToURL(x.client.BaseURL(), x.client.Username(), pair.RemoteRoot, e.Path)
	targetPath := davpath.LocalPath(pair.LocalRoot, e.Path)

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("sync: creating parent dir for %s: %w", e.Path, err)
	}

	body, _, err := x.client.Get(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(targetPath), ".ncdav-*.part")
	if err != nil {
		return fmt.Errorf("sync: creating temp file for %s: %w", e.Path, err)
	}

	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("sync: downloading %s: %w", e.Path, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("sync: closing temp file for %s: %w", e.Path, err)
	}

	mtime := time.UnixMilli(e.RemoteMtime)
	if err := os.Chtimes(tmpPath, mtime, mtime); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("sync: setting mtime for %s: %w", e.Path, err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("sync: moving %s into place: %w", e.Path, err)
	}

	x.logger.Debug("downloaded", slog.String("path", e.Path))

	return nil
}

// runUploads puts each entry's local content to the server with the
// file's truncated mtime in X-OC-MTime.
func (x *Executor) runUploads(ctx context.Context, pair *Pair, entries []Entry) (phaseResult, error) {
	results, failed, err := x.dispatch(ctx, entries, func(ctx context.Context, e *Entry) (PathMtime, error) {
		mtimeMs, err := x.uploadOne(ctx, pair, e)
		if err != nil {
			return PathMtime{}, err
		}

		return PathMtime{Path: e.Path, MtimeMs: mtimeMs}, nil
	})
	if err != nil {
		return phaseResult{failed: failed}, err
	}

	if err := x.store.MarkUploadedBatch(ctx, pair.ID, results); err != nil {
		return phaseResult{succeeded: len(results), failed: failed}, err
	}

	return phaseResult{succeeded: len(results), failed: failed}, nil
}

// uploadOne puts one local file and returns its truncated mtime in ms.
func (x *Executor) uploadOne(ctx context.Context, pair *Pair, e *Entry) (int64, error) {
	localPath := davpath.LocalPath(pair.LocalRoot, e.Path)

	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("sync: opening %s for upload: %w", e.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("sync: stat %s: %w", e.Path, err)
	}

	mtimeMs := TruncateMsToSeconds(info.ModTime().UTC().UnixMilli())
	url := davpath.RelativeToURL(x.client.BaseURL(), x.client.Username(), pair.RemoteRoot, e.Path)

	if err := x.client.Put(ctx, url, f, info.Size(), MsToSeconds(mtimeMs)); err != nil {
		return 0, err
	}

	x.logger.Debug("uploaded", slog.String("path", e.Path))

	return mtimeMs, nil
}

// runDeleteRemote deletes each entry's remote resource and drops the row.
// A 404 from the server counts as success inside the client.
func (x *Executor) runDeleteRemote(ctx context.Context, pair *Pair, entries []Entry) (phaseResult, error) {
	results, failed, err := x.dispatch(ctx, entries, func(ctx context.Context, e *Entry) (PathMtime, error) {
		url := davpath.RelativeToURL(x.client.BaseURL(), x.client.Username(), pair.RemoteRoot, e.Path)

		if err := x.client.Delete(ctx, url); err != nil {
			return PathMtime{}, err
		}

		x.logger.Debug("deleted remote", slog.String("path", e.Path))

		return PathMtime{Path: e.Path}, nil
	})
	if err != nil {
		return phaseResult{failed: failed}, err
	}

	if err := x.store.DropBatch(ctx, pair.ID, paths(results)); err != nil {
		return phaseResult{succeeded: len(results), failed: failed}, err
	}

	return phaseResult{succeeded: len(results), failed: failed}, nil
}

// runDeleteLocal unlinks each entry's local file (tolerating files
// already gone) and drops the row.
func (x *Executor) runDeleteLocal(ctx context.Context, pair *Pair, entries []Entry) (phaseResult, error) {
	results, failed, err := x.dispatch(ctx, entries, func(_ context.Context, e *Entry) (PathMtime, error) {
		localPath := davpath.LocalPath(pair.LocalRoot, e.Path)

		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			return PathMtime{}, fmt.Errorf("sync: removing %s: %w", e.Path, err)
		}

		x.logger.Debug("deleted local", slog.String("path", e.Path))

		return PathMtime{Path: e.Path}, nil
	})
	if err != nil {
		return phaseResult{failed: failed}, err
	}

	if err := x.store.DropBatch(ctx, pair.ID, paths(results)); err != nil {
		return phaseResult{succeeded: len(results), failed: failed}, err
	}

	return phaseResult{succeeded: len(results), failed: failed}, nil
}

// dispatch pipes entries through a bounded worker pool. An individual
// action failure is logged and excluded from the results; only context
// cancellation aborts the phase.
func (x *Executor) dispatch(
	ctx context.Context,
	entries []Entry,
	handler func(context.Context, *Entry) (PathMtime, error),
) ([]PathMtime, int, error) {
	if len(entries) == 0 {
		return nil, 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(phaseWorkers)

	var mu gosync.Mutex

	var results []PathMtime

	var failed int

	for i := range entries {
		e := &entries[i]

		g.Go(func() error {
			r, err := handler(gctx, e)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				x.logger.Warn("action failed",
					slog.String("path", e.Path),
					slog.String("error", err.Error()),
				)

				mu.Lock()
				failed++
				mu.Unlock()

				return nil
			}

			mu.Lock()
			results = append(results, r)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, failed, err
	}

	return results, failed, nil
}

// paths projects the Path column out of phase results.
func paths(results []PathMtime) []string {
	out := make([]string, len(results))

	for i, r := range results {
		out[i] = r.Path
	}

	return out
}
