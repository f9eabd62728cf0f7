package visionkit

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// rename is os.Rename, replaceable in tests to force the copy fallback.
var rename = os.Rename

// install moves the compiled artifact at compiledPath to the deterministic
// location for id, replacing any artifact already there. It returns the
// installed path relative to the documents directory.
//
// The move is a rename when source and destination share a filesystem and
// falls back to a recursive copy otherwise, which leaves the source in place.
func (s *storage) install(id ModelIdentity, compiledPath string) (string, error) {
	dest := s.artifactPath(id)

	err := withFileLock(s.lockPath(id), s.lockTimeout, func() error {
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("removing existing artifact: %v", err)
		}

		if err := rename(compiledPath, dest); err == nil {
			return nil
		}

		if err := copyTree(compiledPath, dest); err != nil {
			os.RemoveAll(dest)
			return fmt.Errorf("copying artifact: %v", err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInstall, id, err)
	}

	return artifactName(id), nil
}

// copyTree copies a file or a directory tree from src to dst.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode().Perm())
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}
