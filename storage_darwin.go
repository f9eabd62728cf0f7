//go:build darwin

package visionkit

import (
	"os"
	"path/filepath"
)

// defaultDocumentsDir returns the default documents directory on macOS and iOS.
// Returns ~/Library/Application Support/<appName>/models/, or
// ~/Documents/<appName>/models/ inside an iOS sandbox where Library is not
// writable by convention.
func defaultDocumentsDir(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if exists(filepath.Join(home, "Library", "Application Support")) {
		return filepath.Join(home, "Library", "Application Support", appName, "models"), nil
	}
	return filepath.Join(home, "Documents", appName, "models"), nil
}
