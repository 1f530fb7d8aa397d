package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ncdav/ncdav-sync/internal/davpath"
	"github.com/ncdav/ncdav-sync/internal/webdav"
)

// remoteDepth is the PROPFIND Depth used to enumerate a pair's whole
// remote tree in a single request.
const remoteDepth = 20

// DavClient is the slice of the WebDAV client the engine consumes,
// defined here per the "accept interfaces" convention so tests can swap
// in fakes.
type DavClient interface {
	Propfind(ctx context.Context, url string, depth int) ([]byte, error)
	Get(ctx context.Context, url string) (io.ReadCloser, http.Header, error)
	Put(ctx context.Context, url string, body io.Reader, size int64, mtimeSeconds int64) error
	Delete(ctx context.Context, url string) error
	CheckServerIdentity(ctx context.Context) error
	BaseURL() string
	Username() string
}

// CollectRemote fetches a pair's remote tree with one deep PROPFIND and
// returns one observation per file passing the extension filter. Folder
// records are dropped; paths are made pair-root-relative.
func CollectRemote(ctx context.Context, client DavClient, pair *Pair, filter *ExtensionFilter, logger *slog.Logger) ([]Observation, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rootURL := davpath.RelativeToURL(client.BaseURL(), client.Username(), pair.RemoteRoot, "")

	body, err := client.Propfind(ctx, rootURL, remoteDepth)
	if err != nil {
		return nil, fmt.Errorf("sync: remote snapshot for pair %d: %w", pair.ID, err)
	}

	resources, err := webdav.ParseMultistatus(body, logger)
	if err != nil {
		return nil, fmt.Errorf("sync: remote snapshot for pair %d: %w", pair.ID, err)
	}

	obs := make([]Observation, 0, len(resources))

	for i := range resources {
		res := &resources[i]

		if res.IsFolder {
			continue
		}

		rel, ok := pairRelative(pair.RemoteRoot, res.RelativePath)
		if !ok {
			continue
		}

		rel = norm.NFC.String(rel)

		if !filter.Allows(rel) {
			logger.Debug("remote snapshot: excluded by extension filter", slog.String("path", rel))
			continue
		}

		obs = append(obs, Observation{Path: rel, MtimeMs: res.RemoteMtimeMs})
	}

	logger.Debug("remote snapshot collected",
		slog.Int64("pair_id", pair.ID), slog.Int("files", len(obs)))

	return obs, nil
}

// pairRelative strips the pair's remote root from a user-relative path.
// Returns ok=false for the root itself or for paths outside the root.
func pairRelative(remoteRoot, userRel string) (string, bool) {
	if userRel == davpath.RootSentinel || userRel == "" {
		return "", false
	}

	root := strings.Trim(remoteRoot, "/")
	if root == "" {
		return userRel, true
	}

	if userRel == root {
		return "", false
	}

	rel, found := strings.CutPrefix(userRel, root+"/")
	if !found {
		return "", false
	}

	return rel, true
}
