// Package sync implements the bidirectional sync engine: the durable
// per-pair state store, local and remote snapshot collectors, the action
// classifier, the bounded-concurrency executor, and the orchestrator that
// drives a full pass over every configured pair.
package sync

import (
	"time"
)

// Pair is one sync configuration: a remote folder tree, a local directory
// tree, and an extension allowlist. Pairs are immutable after creation;
// editing is delete + create.
type Pair struct {
	ID         int64
	RemoteRoot string   // slash-separated, user-relative, "" = user root
	LocalRoot  string   // absolute filesystem path
	Extensions []string // lowercase with leading dot; [".*"] = any
}

// Entry is the engine's knowledge of one file at one logical location,
// keyed by (pair id, relative path). Mtimes are UTC milliseconds since
// epoch; 0 means the side has never been observed. Local mtimes are
// truncated to whole seconds before storage (WebDAV granularity).
type Entry struct {
	PairID          int64
	Path            string // pair-root-relative, forward-slash, decoded
	RemoteMtime     int64
	RemoteMtimePrev int64
	ExistsRemote    bool
	LocalMtime      int64
	LocalMtimePrev  int64
	ExistsLocal     bool
	Synced          bool
	CapturedAt      int64
}

// Action is the classifier's verdict for one entry.
type Action int

const (
	ActionNone Action = iota
	ActionConflict
	ActionDownload
	ActionUpload
	ActionDeleteRemote
	ActionDeleteLocal
)

// String returns the action name for logs.
func (a Action) String() string {
	switch a {
	case ActionConflict:
		return "conflict"
	case ActionDownload:
		return "download"
	case ActionUpload:
		return "upload"
	case ActionDeleteRemote:
		return "delete-remote"
	case ActionDeleteLocal:
		return "delete-local"
	case ActionNone:
		return "none"
	default:
		return "unknown"
	}
}

// Observation is one file seen by a snapshot collector.
type Observation struct {
	Path    string // pair-root-relative storage path
	MtimeMs int64
}

// msPerSecond converts between millisecond and second precision.
const msPerSecond = int64(1000)

// NowMs returns the current wall clock as UTC milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// TruncateMsToSeconds truncates a millisecond timestamp to whole-second
// precision, still expressed in milliseconds. WebDAV Last-Modified is
// second-granular, so every comparison and every stored local mtime goes
// through this truncation or round-trip equality breaks.
func TruncateMsToSeconds(ms int64) int64 {
	return ms / msPerSecond * msPerSecond
}

// MsToSeconds converts a millisecond timestamp to whole seconds.
func MsToSeconds(ms int64) int64 {
	return ms / msPerSecond
}
