package visionkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const archiveExt = ".zip"

// Raw model extensions recognised inside an archive.
var modelExts = []string{".mlmodel", ".mlpackage"}

var readDir = os.ReadDir

// isArchive reports whether a downloaded artifact is a zip archive, judging
// by the source URL or the local file name.
func isArchive(a downloadedArtifact) bool {
	if a.SourceURL != nil {
		if strings.EqualFold(filepath.Ext(a.SourceURL.Path), archiveExt) {
			return true
		}
		if strings.Contains(strings.ToLower(a.SourceURL.String()), archiveExt) {
			return true
		}
	}
	return strings.EqualFold(filepath.Ext(a.Path), archiveExt)
}

// unpackModel extracts the archive at archivePath into a fresh, uniquely
// named directory under root and returns the path of the raw model inside it.
func unpackModel(ctx context.Context, p Platform, archivePath, root string, logger Logger) (string, error) {
	dir := filepath.Join(root, "unpack-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveExtraction, err)
	}

	if err := p.ExtractArchive(ctx, archivePath, dir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveExtraction, err)
	}

	return findModelFile(dir, logger)
}

// findModelFile searches root for a raw model. Entries of a directory are
// checked before any of its subdirectories are descended into, and
// subdirectories are visited in lexical order. A .mlpackage directory is a
// match itself and is never descended into. A subdirectory that cannot be
// read is logged and skipped; only an unreadable root is an error.
func findModelFile(root string, logger Logger) (string, error) {
	entries, err := readDir(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveExtraction, err)
	}
	path := searchModel(root, entries, logger)
	if path == "" {
		return "", fmt.Errorf("%w: no .mlmodel or .mlpackage in archive", ErrArchiveExtraction)
	}
	return path, nil
}

func searchModel(dir string, entries []os.DirEntry, logger Logger) string {
	var subdirs []string
	for _, e := range entries {
		if isModelName(e.Name()) {
			return filepath.Join(dir, e.Name())
		}
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
		}
	}

	for _, sub := range subdirs {
		subEntries, err := readDir(sub)
		if err != nil {
			logger.Warn("skipping unreadable directory", "path", sub, "error", err)
			continue
		}
		if found := searchModel(sub, subEntries, logger); found != "" {
			return found
		}
	}
	return ""
}

func isModelName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, m := range modelExts {
		if ext == m {
			return true
		}
	}
	return false
}
