//go:build !darwin && !windows

package visionkit

import (
	"os"
	"path/filepath"
)

// defaultDocumentsDir returns the default documents directory on Linux,
// Android and other Unix systems.
// Uses $XDG_DATA_HOME/<appName>/models/ if set,
// otherwise ~/.local/share/<appName>/models/
func defaultDocumentsDir(appName string) (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, appName, "models"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appName, "models"), nil
}
