package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// WildcardExtension is the allowlist token meaning "any extension".
const WildcardExtension = ".*"

// ErrPairNotFound is returned when a pair id does not exist.
var ErrPairNotFound = errors.New("sync: pair not found")

// PathMtime is a (path, mtime) result committed by the executor after a
// successful download or upload.
type PathMtime struct {
	Path    string
	MtimeMs int64
}

// Store is the durable state store: the pairs registry and the per-file
// entries table, backed by an embedded SQLite database in WAL mode. Every
// phase's mutations land in a single transaction.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for the hot per-file upserts.
	observeRemoteStmt *sql.Stmt
	observeLocalStmt  *sql.Stmt
}

// NewStore opens (or creates) the database at dbPath, applies migrations,
// and prepares the hot statements. Use ":memory:" for tests.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening state store", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sync: open sqlite: %w", err)
	}

	// The store is the sole writer; a single connection sidesteps
	// SQLITE_BUSY between concurrent phase commits.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases prepared statements and the database handle.
func (s *Store) Close() error {
	if s.observeRemoteStmt != nil {
		s.observeRemoteStmt.Close()
	}

	if s.observeLocalStmt != nil {
		s.observeLocalStmt.Close()
	}

	return s.db.Close()
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sync: set pragma %q: %w", p, err)
		}
	}

	return nil
}

const (
	sqlObserveRemote = `INSERT INTO entries (pair_id, path, remote_mtime, exists_remote, captured_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(pair_id, path) DO UPDATE SET
			remote_mtime = excluded.remote_mtime,
			exists_remote = 1,
			captured_at = excluded.captured_at`

	sqlObserveLocal = `INSERT INTO entries (pair_id, path, local_mtime, exists_local, captured_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(pair_id, path) DO UPDATE SET
			local_mtime = excluded.local_mtime,
			exists_local = 1,
			captured_at = excluded.captured_at`
)

// prepareStatements readies the upserts used once per observed file.
func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	if s.observeRemoteStmt, err = s.db.PrepareContext(ctx, sqlObserveRemote); err != nil {
		return fmt.Errorf("sync: prepare observe remote: %w", err)
	}

	if s.observeLocalStmt, err = s.db.PrepareContext(ctx, sqlObserveLocal); err != nil {
		return fmt.Errorf("sync: prepare observe local: %w", err)
	}

	return nil
}

// --- Pair registry ---

// AddPair inserts a new pair. Extensions are normalized to lowercase.
func (s *Store) AddPair(ctx context.Context, remoteRoot, localRoot string, extensions []string) (*Pair, error) {
	normalized := make([]string, 0, len(extensions))

	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}

		normalized = append(normalized, ext)
	}

	if len(normalized) == 0 {
		normalized = []string{WildcardExtension}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO pairs (remote_root, local_root, allowed_extensions_csv) VALUES (?, ?, ?)`,
		remoteRoot, localRoot, strings.Join(normalized, ","))
	if err != nil {
		return nil, fmt.Errorf("sync: inserting pair: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sync: pair insert id: %w", err)
	}

	s.logger.Info("pair added",
		slog.Int64("id", id),
		slog.String("remote_root", remoteRoot),
		slog.String("local_root", localRoot),
	)

	return &Pair{ID: id, RemoteRoot: remoteRoot, LocalRoot: localRoot, Extensions: normalized}, nil
}

// DeletePair removes a pair; the schema's ON DELETE CASCADE takes its
// entries with it in the same statement.
func (s *Store) DeletePair(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pairs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sync: deleting pair %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sync: delete pair %d rows affected: %w", id, err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: id %d", ErrPairNotFound, id)
	}

	s.logger.Info("pair deleted", slog.Int64("id", id))

	return nil
}

// ListPairs returns all configured pairs ordered by id.
func (s *Store) ListPairs(ctx context.Context) ([]Pair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, remote_root, local_root, allowed_extensions_csv FROM pairs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sync: listing pairs: %w", err)
	}
	defer rows.Close()

	var pairs []Pair

	for rows.Next() {
		var p Pair

		var csv string

		if err := rows.Scan(&p.ID, &p.RemoteRoot, &p.LocalRoot, &csv); err != nil {
			return nil, fmt.Errorf("sync: scanning pair: %w", err)
		}

		p.Extensions = strings.Split(csv, ",")
		pairs = append(pairs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating pairs: %w", err)
	}

	return pairs, nil
}

// GetPair returns one pair by id.
func (s *Store) GetPair(ctx context.Context, id int64) (*Pair, error) {
	var p Pair

	var csv string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, remote_root, local_root, allowed_extensions_csv FROM pairs WHERE id = ?`, id).
		Scan(&p.ID, &p.RemoteRoot, &p.LocalRoot, &csv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrPairNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("sync: getting pair %d: %w", id, err)
	}

	p.Extensions = strings.Split(csv, ",")

	return &p, nil
}

// CountEntries returns the number of entries tracked for a pair.
func (s *Store) CountEntries(ctx context.Context, pairID int64) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE pair_id = ?`, pairID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sync: counting entries for pair %d: %w", pairID, err)
	}

	return count, nil
}

// --- Pass lifecycle ---

// BeginPass clears both exists flags for every entry of the pair and
// stamps the pass's capture time. Flags are set true again only when a
// collector re-observes the path.
func (s *Store) BeginPass(ctx context.Context, pairID, capturedAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entries SET exists_remote = 0, exists_local = 0, captured_at = ?
		 WHERE pair_id = ?`, capturedAt, pairID)
	if err != nil {
		return fmt.Errorf("sync: begin pass for pair %d: %w", pairID, err)
	}

	return nil
}

// ObserveRemoteBatch upserts one snapshot of remote observations inside a
// single transaction. Local fields are never touched.
func (s *Store) ObserveRemoteBatch(ctx context.Context, pairID int64, obs []Observation, capturedAt int64) error {
	return s.observeBatch(ctx, s.observeRemoteStmt, "remote", pairID, obs, capturedAt)
}

// ObserveLocalBatch is the local-side counterpart of ObserveRemoteBatch.
func (s *Store) ObserveLocalBatch(ctx context.Context, pairID int64, obs []Observation, capturedAt int64) error {
	return s.observeBatch(ctx, s.observeLocalStmt, "local", pairID, obs, capturedAt)
}

func (s *Store) observeBatch(
	ctx context.Context, stmt *sql.Stmt, side string, pairID int64, obs []Observation, capturedAt int64,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: begin %s observation: %w", side, err)
	}
	defer tx.Rollback()

	txStmt := tx.StmtContext(ctx, stmt)
	defer txStmt.Close()

	for _, o := range obs {
		if _, err := txStmt.ExecContext(ctx, pairID, o.Path, o.MtimeMs, capturedAt); err != nil {
			return fmt.Errorf("sync: observing %s %q: %w", side, o.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: commit %s observation: %w", side, err)
	}

	s.logger.Debug("snapshot committed",
		slog.String("side", side),
		slog.Int64("pair_id", pairID),
		slog.Int("files", len(obs)),
	)

	return nil
}

// entryColumns is the column list shared by entry queries.
const entryColumns = `pair_id, path, remote_mtime, remote_mtime_prev, exists_remote,
	local_mtime, local_mtime_prev, exists_local, synced, captured_at`

// ListEntries returns all entries of a pair ordered by path. Phase
// selection classifies these rows in memory.
func (s *Store) ListEntries(ctx context.Context, pairID int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE pair_id = ? ORDER BY path`, pairID)
	if err != nil {
		return nil, fmt.Errorf("sync: listing entries for pair %d: %w", pairID, err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var e Entry

		if err := rows.Scan(
			&e.PairID, &e.Path, &e.RemoteMtime, &e.RemoteMtimePrev, &e.ExistsRemote,
			&e.LocalMtime, &e.LocalMtimePrev, &e.ExistsLocal, &e.Synced, &e.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("sync: scanning entry: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating entries: %w", err)
	}

	return entries, nil
}

// GetEntry returns one entry, or nil when none exists.
func (s *Store) GetEntry(ctx context.Context, pairID int64, path string) (*Entry, error) {
	var e Entry

	err := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE pair_id = ? AND path = ?`, pairID, path).
		Scan(&e.PairID, &e.Path, &e.RemoteMtime, &e.RemoteMtimePrev, &e.ExistsRemote,
			&e.LocalMtime, &e.LocalMtimePrev, &e.ExistsLocal, &e.Synced, &e.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("sync: getting entry %q: %w", path, err)
	}

	return &e, nil
}

// MarkDownloadedBatch records successful downloads in one transaction:
// the local side now exists with the server's mtime and the entry is in
// sync.
func (s *Store) MarkDownloadedBatch(ctx context.Context, pairID int64, results []PathMtime) error {
	return s.markBatch(ctx, "downloaded", pairID, results,
		`UPDATE entries SET exists_local = 1, local_mtime = ?, synced = 1
		 WHERE pair_id = ? AND path = ?`)
}

// MarkUploadedBatch records successful uploads in one transaction.
func (s *Store) MarkUploadedBatch(ctx context.Context, pairID int64, results []PathMtime) error {
	return s.markBatch(ctx, "uploaded", pairID, results,
		`UPDATE entries SET exists_remote = 1, remote_mtime = ?, synced = 1
		 WHERE pair_id = ? AND path = ?`)
}

func (s *Store) markBatch(
	ctx context.Context, verb string, pairID int64, results []PathMtime, query string,
) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: begin mark %s: %w", verb, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("sync: prepare mark %s: %w", verb, err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.MtimeMs, pairID, r.Path); err != nil {
			return fmt.Errorf("sync: marking %s %q: %w", verb, r.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: commit mark %s: %w", verb, err)
	}

	return nil
}

// DropBatch deletes entry rows after successful delete actions, in one
// transaction.
func (s *Store) DropBatch(ctx context.Context, pairID int64, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: begin drop: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM entries WHERE pair_id = ? AND path = ?`)
	if err != nil {
		return fmt.Errorf("sync: prepare drop: %w", err)
	}
	defer stmt.Close()

	for _, path := range paths {
		if _, err := stmt.ExecContext(ctx, pairID, path); err != nil {
			return fmt.Errorf("sync: dropping %q: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: commit drop: %w", err)
	}

	return nil
}

// FinishPass rotates current state into prior state inside one
// transaction: entries with both sides present and equal mtimes become
// synced, then every row's *_mtime_prev catches up to *_mtime.
func (s *Store) FinishPass(ctx context.Context, pairID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: begin finish pass: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE entries SET synced = 1
		 WHERE pair_id = ? AND exists_remote = 1 AND exists_local = 1
		   AND local_mtime = remote_mtime AND synced = 0`, pairID); err != nil {
		return fmt.Errorf("sync: finish pass settle for pair %d: %w", pairID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE entries SET remote_mtime_prev = remote_mtime, local_mtime_prev = local_mtime
		 WHERE pair_id = ?`, pairID); err != nil {
		return fmt.Errorf("sync: finish pass rotate for pair %d: %w", pairID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: commit finish pass: %w", err)
	}

	s.logger.Debug("pass finished", slog.Int64("pair_id", pairID))

	return nil
}
