package sync

import (
	"path"
	"strings"
)

// ExtensionFilter applies a pair's extension allowlist. Matching is
// case-insensitive against the file's extension including the leading dot;
// the WildcardExtension token admits everything.
type ExtensionFilter struct {
	allowed  map[string]bool
	wildcard bool
}

// NewExtensionFilter builds a filter from a pair's extension list.
func NewExtensionFilter(extensions []string) *ExtensionFilter {
	f := &ExtensionFilter{allowed: make(map[string]bool, len(extensions))}

	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}

		if ext == WildcardExtension {
			f.wildcard = true
			continue
		}

		f.allowed[ext] = true
	}

	return f
}

// Allows reports whether a relative path passes the allowlist.
func (f *ExtensionFilter) Allows(relPath string) bool {
	if f.wildcard {
		return true
	}

	return f.allowed[strings.ToLower(path.Ext(relPath))]
}
