package visionkit

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLockTimeout is the default timeout for acquiring file locks.
const DefaultLockTimeout = 30 * time.Second

// compiledModelExt is the extension of installed artifacts.
const compiledModelExt = ".mlmodelc"

// storage owns the on-device layout: the documents directory holding
// installed artifacts and the scratch directory for downloads and
// extraction.
type storage struct {
	// baseDir is the documents directory.
	baseDir string

	// scratchDir holds downloads and extraction directories.
	scratchDir string

	// lockTimeout is the maximum duration to wait for file lock acquisition.
	lockTimeout time.Duration
}

// envVarName constructs an environment variable name from the app name.
// Converts appName to uppercase and appends "_MODELS_DIR".
// Example: envVarName("visionkit") returns "VISIONKIT_MODELS_DIR".
func envVarName(appName string) string {
	return strings.ToUpper(appName) + "_MODELS_DIR"
}

// newStorage creates a new storage instance for the given configuration.
func newStorage(cfg Config) (*storage, error) {
	var baseDir string

	// Priority: env var > Config.DataDir > platform default
	if envDir := os.Getenv(envVarName(cfg.AppName)); envDir != "" {
		baseDir = envDir
	} else if cfg.DataDir != "" {
		baseDir = cfg.DataDir
	} else {
		defaultDir, err := defaultDocumentsDir(cfg.AppName)
		if err != nil {
			return nil, fmt.Errorf("failed to get default data dir: %w", err)
		}
		baseDir = defaultDir
	}

	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		scratchDir = filepath.Join(os.TempDir(), cfg.AppName+"-scratch")
	}

	s := &storage{baseDir: baseDir, scratchDir: scratchDir, lockTimeout: DefaultLockTimeout}

	if err := s.ensureDir(baseDir); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := s.ensureDir(scratchDir); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	return s, nil
}

// artifactName returns the deterministic artifact file name for id.
func artifactName(id ModelIdentity) string {
	return id.Key() + compiledModelExt
}

// artifactPath returns the absolute install path for id.
func (s *storage) artifactPath(id ModelIdentity) string {
	return filepath.Join(s.baseDir, artifactName(id))
}

// resolveArtifact turns a path stored in a cache record into an absolute
// path inside the documents directory.
func (s *storage) resolveArtifact(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: invalid artifact path %q", ErrStorageError, rel)
	}

	cleanRoot := filepath.Clean(s.baseDir)
	path := filepath.Clean(filepath.Join(cleanRoot, rel))
	relPath, err := filepath.Rel(cleanRoot, path)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal attempt detected: %s", ErrStorageError, rel)
	}
	return path, nil
}

// exists reports whether path exists.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// diskUsage returns the total size of the file or directory tree at path.
func diskUsage(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// lockPath returns the cross-process lock file used while acquiring id.
func (s *storage) lockPath(id ModelIdentity) string {
	return filepath.Join(s.baseDir, "."+id.Key()+".lock")
}

// ensureDir creates a directory and all parent directories if they don't exist.
func (s *storage) ensureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrStorageError, path, err)
	}
	return nil
}

// newScratchDir creates a uniquely named directory under the scratch root.
func (s *storage) newScratchDir(prefix string) (string, error) {
	dir := filepath.Join(s.scratchDir, prefix+"-"+uuid.NewString())
	if err := s.ensureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// atomicWriteFile writes to path+".tmp" and renames it over path.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", ErrStorageError, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write temp file: %v", ErrStorageError, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: failed to rename temp file: %v", ErrStorageError, err)
	}

	return nil
}

// removeArtifact deletes the installed artifact for id, if any.
func (s *storage) removeArtifact(id ModelIdentity) error {
	if err := os.RemoveAll(s.artifactPath(id)); err != nil {
		return fmt.Errorf("%w: failed to remove artifact: %v", ErrStorageError, err)
	}
	return nil
}

// pruneScratch removes scratch entries not modified for maxAge.
// Returns the number of entries removed.
func (s *storage) pruneScratch(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.scratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: reading scratch dir: %v", ErrStorageError, err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.RemoveAll(filepath.Join(s.scratchDir, entry.Name())) == nil {
				removed++
			}
		}
	}

	return removed, nil
}
