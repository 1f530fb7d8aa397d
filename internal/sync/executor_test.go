package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncdav/ncdav-sync/internal/webdav"
)

// newTestExecutor wires an executor against a fake server and a fresh
// store, returning the registered pair as well.
func newTestExecutor(t *testing.T) (*Executor, *Store, *fakeServer, *Pair) {
	t.Helper()

	fake := newFakeServer(t)
	store := newTestStore(t)
	client := webdav.NewClient(fake.URL(), "alice", "secret", fake.Client(), testLogger(t))
	exec := NewExecutor(store, client, "nextcloud-dav-sync.db", testLogger(t))

	pair, err := store.AddPair(context.Background(), "Docs", t.TempDir(), []string{".*"})
	require.NoError(t, err)

	return exec, store, fake, pair
}

// One failing download must not abort the phase or poison the commit of
// the successful ones.
func TestRunDownloads_PartialFailure(t *testing.T) {
	exec, store, fake, pair := newTestExecutor(t)
	ctx := context.Background()

	fake.seed("Docs/good.txt", "content", 1700000000)

	now := NowMs()
	require.NoError(t, store.ObserveRemoteBatch(ctx, pair.ID, []Observation{
		{Path: "good.txt", MtimeMs: 1700000000000},
		{Path: "missing.txt", MtimeMs: 1700000000000},
	}, now))

	entries, err := store.ListEntries(ctx, pair.ID)
	require.NoError(t, err)

	result, err := exec.runDownloads(ctx, pair, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, result.succeeded)
	assert.Equal(t, 1, result.failed)

	require.FileExists(t, filepath.Join(pair.LocalRoot, "good.txt"))

	good, err := store.GetEntry(ctx, pair.ID, "good.txt")
	require.NoError(t, err)
	assert.True(t, good.Synced)

	missing, err := store.GetEntry(ctx, pair.ID, "missing.txt")
	require.NoError(t, err)
	assert.False(t, missing.Synced, "failed action must leave the row untouched")
	assert.False(t, missing.ExistsLocal)
}

// B3: a 404 on DELETE is success and the entry is dropped.
func TestRunDeleteRemote_404IsSuccess(t *testing.T) {
	exec, store, _, pair := newTestExecutor(t)
	ctx := context.Background()

	now := NowMs()
	require.NoError(t, store.ObserveRemoteBatch(ctx, pair.ID, []Observation{
		{Path: "gone.txt", MtimeMs: 1700000000000},
	}, now))

	entries, err := store.ListEntries(ctx, pair.ID)
	require.NoError(t, err)

	result, err := exec.runDeleteRemote(ctx, pair, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, result.succeeded)
	assert.Zero(t, result.failed)

	e, err := store.GetEntry(ctx, pair.ID, "gone.txt")
	require.NoError(t, err)
	assert.Nil(t, e)
}

// Delete-local tolerates a file that is already gone.
func TestRunDeleteLocal_TolerantOfMissingFile(t *testing.T) {
	exec, store, _, pair := newTestExecutor(t)
	ctx := context.Background()

	now := NowMs()
	require.NoError(t, store.ObserveLocalBatch(ctx, pair.ID, []Observation{
		{Path: "already-gone.txt", MtimeMs: 1700000000000},
	}, now))

	entries, err := store.ListEntries(ctx, pair.ID)
	require.NoError(t, err)

	result, err := exec.runDeleteLocal(ctx, pair, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, result.succeeded)

	e, err := store.GetEntry(ctx, pair.ID, "already-gone.txt")
	require.NoError(t, err)
	assert.Nil(t, e)
}

// The state-store database file is never copied by conflict
// materialization.
func TestRunConflicts_ExcludesStateStoreFile(t *testing.T) {
	exec, store, _, pair := newTestExecutor(t)
	ctx := context.Background()

	dbPath := filepath.Join(pair.LocalRoot, "nextcloud-dav-sync.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite"), 0o644))

	entries := []Entry{{
		PairID: pair.ID, Path: "nextcloud-dav-sync.db",
		ExistsRemote: true, ExistsLocal: true,
		RemoteMtimePrev: 1, RemoteMtime: 2,
		LocalMtimePrev: 1, LocalMtime: 3,
	}}

	result, err := exec.runConflicts(ctx, pair, entries, NowMs())
	require.NoError(t, err)
	assert.Zero(t, result.succeeded)
	assert.Zero(t, result.failed)

	matches, err := filepath.Glob(filepath.Join(pair.LocalRoot, "*_conflict_*"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	all, err := store.ListEntries(ctx, pair.ID)
	require.NoError(t, err)
	assert.Empty(t, all, "no observation may be registered for the excluded file")
}

// Conflict materialization registers the copy as a fresh local
// observation so the upload phase can see it.
func TestRunConflicts_RegistersCopyObservation(t *testing.T) {
	exec, store, _, pair := newTestExecutor(t)
	ctx := context.Background()

	path := filepath.Join(pair.LocalRoot, "c.txt")
	require.NoError(t, os.WriteFile(path, []byte("local v2"), 0o644))

	mtime := time.Unix(1700000200, 0)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	entries := []Entry{{
		PairID: pair.ID, Path: "c.txt",
		ExistsRemote: true, ExistsLocal: true,
		RemoteMtimePrev: 1700000000000, RemoteMtime: 1700000300000,
		LocalMtimePrev: 1700000000000, LocalMtime: 1700000200000,
		Synced: true,
	}}

	capturedAt := NowMs()

	result, err := exec.runConflicts(ctx, pair, entries, capturedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, result.succeeded)

	all, err := store.ListEntries(ctx, pair.ID)
	require.NoError(t, err)
	require.Len(t, all, 1, "only the copy is registered; the original entry is engine state")

	copyEntry := all[0]
	assert.True(t, IsConflictCopy(copyEntry.Path))
	assert.True(t, copyEntry.ExistsLocal)
	assert.False(t, copyEntry.Synced)
	assert.Equal(t, int64(1700000200000), copyEntry.LocalMtime)
}
