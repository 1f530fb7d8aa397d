// Package davpath converts between the three path views of a synced file:
// the pair-relative storage path (decoded, forward-slash), the full WebDAV
// URL, and the percent-encoded href returned by the server in PROPFIND
// responses. All three must round-trip losslessly.
package davpath

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// davPrefixSegments is the number of leading path segments in every
// Nextcloud DAV href: remote.php/dav/files/<user>.
const davPrefixSegments = 4

// RootSentinel is the relative path representing the remote root itself,
// returned by HrefToRelative when the href resolves to the DAV base.
const RootSentinel = "/"

// davFilesPrefix is the fixed endpoint prefix for per-user file access.
const davFilesPrefix = "remote.php/dav/files"

// HrefToRelative converts a <d:href> value into the decoded pair-relative
// path. The href is parsed as a URI path, empty segments are dropped, the
// first four non-empty segments (remote.php/dav/files/<user>) are stripped,
// and the remainder is percent-decoded and joined with "/". An href that
// resolves to the DAV root yields RootSentinel.
func HrefToRelative(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("davpath: parsing href %q: %w", href, err)
	}

	var segments []string

	for _, seg := range strings.Split(u.EscapedPath(), "/") {
		if seg == "" {
			continue
		}

		segments = append(segments, seg)
	}

	if len(segments) <= davPrefixSegments {
		return RootSentinel, nil
	}

	decoded := make([]string, 0, len(segments)-davPrefixSegments)

	for _, seg := range segments[davPrefixSegments:] {
		d, err := url.PathUnescape(seg)
		if err != nil {
			return "", fmt.Errorf("davpath: decoding href segment %q: %w", seg, err)
		}

		decoded = append(decoded, d)
	}

	return strings.Join(decoded, "/"), nil
}

// RelativeToURL builds the absolute WebDAV URL for a pair-relative path:
// <base>/remote.php/dav/files/<user>/<remoteRoot>/<encoded rel>.
// remoteRoot may be empty (user root). Spaces encode as %20, never "+".
func RelativeToURL(baseURL, username, remoteRoot, rel string) string {
	var b strings.Builder

	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/")
	b.WriteString(davFilesPrefix)
	b.WriteString("/")
	b.WriteString(url.PathEscape(username))

	for _, part := range []string{remoteRoot, rel} {
		if part == "" || part == RootSentinel {
			continue
		}

		for _, seg := range strings.Split(strings.Trim(part, "/"), "/") {
			if seg == "" {
				continue
			}

			b.WriteString("/")
			b.WriteString(url.PathEscape(seg))
		}
	}

	return b.String()
}

// LocalPath joins a pair's local root with a relative storage path,
// converting forward slashes to the platform separator.
func LocalPath(localRoot, rel string) string {
	if rel == "" || rel == RootSentinel {
		return filepath.Clean(localRoot)
	}

	return filepath.Join(localRoot, filepath.FromSlash(rel))
}
