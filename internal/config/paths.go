package config

import (
	"os"
	"path/filepath"
)

// StateFileName is the file name of the default SQLite state store. The
// sync command excludes the base name of the configured state path (this
// name unless state_path is overridden) from conflict-rename copying.
const StateFileName = "nextcloud-dav-sync.db"

// DefaultStatePath returns <app documents>/nextcloud-dav-sync.db. The app
// documents directory is the user home's Documents folder when present,
// the home directory otherwise.
func DefaultStatePath() string {
	return filepath.Join(appDocumentsDir(), StateFileName)
}

// appDocumentsDir resolves the application documents directory.
func appDocumentsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	docs := filepath.Join(home, "Documents")
	if info, err := os.Stat(docs); err == nil && info.IsDir() {
		return docs
	}

	return home
}
