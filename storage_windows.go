//go:build windows

package visionkit

import (
	"os"
	"path/filepath"
)

// defaultDocumentsDir returns the default documents directory on Windows.
// Returns %LOCALAPPDATA%\<appName>\models\, falling back to %APPDATA%.
func defaultDocumentsDir(appName string) (string, error) {
	for _, env := range []string{"LOCALAPPDATA", "APPDATA"} {
		if dir := os.Getenv(env); dir != "" {
			return filepath.Join(dir, appName, "models"), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "AppData", "Local", appName, "models"), nil
}
