package sync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// ErrNoPairs is returned by Sync when no pairs are configured.
var ErrNoPairs = errors.New("sync: no pairs configured")

// Report summarizes one pass over all pairs. Per-file failures land in
// Failed and the log stream; they never flip the pass outcome.
type Report struct {
	Pairs         int
	Downloaded    int
	Uploaded      int
	DeletedLocal  int
	DeletedRemote int
	Conflicts     int
	Failed        int
}

// Engine drives the sync pass: server identity check, then per pair the
// snapshot, classification, and execution phases, strictly in order, one
// pair at a time.
type Engine struct {
	store    *Store
	client   DavClient
	executor *Executor
	logger   *slog.Logger
}

// NewEngine wires an Engine from its collaborators. excludeName is the
// state-store filename the executor must never copy during conflict
// materialization.
func NewEngine(store *Store, client DavClient, excludeName string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:    store,
		client:   client,
		executor: NewExecutor(store, client, excludeName, logger),
		logger:   logger,
	}
}

// Sync runs one full pass. It fails fast when the server is not a
// Nextcloud instance or when no pairs are configured; otherwise per-file
// and per-pair problems are logged and the pass completes.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	capturedAt := NowMs()
	passID := uuid.NewString()

	logger := e.logger.With(slog.String("pass_id", passID))
	logger.Info("sync pass starting")

	if err := e.client.CheckServerIdentity(ctx); err != nil {
		return nil, err
	}

	pairs, err := e.store.ListPairs(ctx)
	if err != nil {
		return nil, err
	}

	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}

	report := &Report{}

	for i := range pairs {
		pair := &pairs[i]

		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := e.syncPair(ctx, logger, pair, capturedAt, report); err != nil {
			if ctx.Err() != nil {
				return report, err
			}

			logger.Error("pair sync failed",
				slog.Int64("pair_id", pair.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		report.Pairs++
	}

	logger.Info("sync finished",
		slog.Int("pairs", report.Pairs),
		slog.Int("downloaded", report.Downloaded),
		slog.Int("uploaded", report.Uploaded),
		slog.Int("deleted_local", report.DeletedLocal),
		slog.Int("deleted_remote", report.DeletedRemote),
		slog.Int("conflicts", report.Conflicts),
		slog.Int("failed", report.Failed),
	)

	return report, nil
}

// syncPair runs the full phase sequence for one pair. Snapshot failures
// abort the pair; a state-store failure inside a phase rolls back that
// phase's transaction and the pass continues with the next phase.
func (e *Engine) syncPair(ctx context.Context, logger *slog.Logger, pair *Pair, capturedAt int64, report *Report) error {
	logger = logger.With(slog.Int64("pair_id", pair.ID))
	logger.Info("pair starting",
		slog.String("remote_root", pair.RemoteRoot),
		slog.String("local_root", pair.LocalRoot),
	)

	filter := NewExtensionFilter(pair.Extensions)

	if err := e.store.BeginPass(ctx, pair.ID, capturedAt); err != nil {
		return err
	}

	remoteObs, err := CollectRemote(ctx, e.client, pair, filter, logger)
	if err != nil {
		return err
	}

	if err := e.store.ObserveRemoteBatch(ctx, pair.ID, remoteObs, capturedAt); err != nil {
		return err
	}

	localObs, err := CollectLocal(ctx, pair.LocalRoot, filter, logger)
	if err != nil {
		return err
	}

	if err := e.store.ObserveLocalBatch(ctx, pair.ID, localObs, capturedAt); err != nil {
		return err
	}

	phases := []struct {
		action Action
		run    func(context.Context, *Pair, []Entry) (phaseResult, error)
		tally  func(*Report, phaseResult)
	}{
		{ActionConflict,
			func(ctx context.Context, p *Pair, entries []Entry) (phaseResult, error) {
				return e.executor.runConflicts(ctx, p, entries, capturedAt)
			},
			func(r *Report, pr phaseResult) { r.Conflicts += pr.succeeded }},
		{ActionDownload, e.executor.runDownloads,
			func(r *Report, pr phaseResult) { r.Downloaded += pr.succeeded }},
		{ActionUpload, e.executor.runUploads,
			func(r *Report, pr phaseResult) { r.Uploaded += pr.succeeded }},
		{ActionDeleteRemote, e.executor.runDeleteRemote,
			func(r *Report, pr phaseResult) { r.DeletedRemote += pr.succeeded }},
		{ActionDeleteLocal, e.executor.runDeleteLocal,
			func(r *Report, pr phaseResult) { r.DeletedLocal += pr.succeeded }},
	}

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := e.store.ListEntries(ctx, pair.ID)
		if err != nil {
			return err
		}

		selected := selectForPhase(entries, phase.action)
		if len(selected) == 0 {
			continue
		}

		logger.Info("phase starting",
			slog.String("phase", phase.action.String()),
			slog.Int("actions", len(selected)),
		)

		pr, err := phase.run(ctx, pair, selected)
		phase.tally(report, pr)
		report.Failed += pr.failed

		if err != nil {
			if ctx.Err() != nil {
				return err
			}

			// State-store failure: the phase's transaction rolled back;
			// continue with the next phase, the rows retry next pass.
			logger.Error("phase commit failed",
				slog.String("phase", phase.action.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := e.store.FinishPass(ctx, pair.ID); err != nil {
		return err
	}

	logger.Info("pair finished")

	return nil
}
