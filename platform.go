package visionkit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
)

// maxExtractBytes caps the total uncompressed size of an archive (4 GiB).
const maxExtractBytes = 4 << 30

// deviceIDFile holds the generated device identifier inside the data directory.
const deviceIDFile = "device-id"

// Platform abstracts the OS-specific capabilities the pipeline needs.
// Hosts inject their own adapter to use native device identifiers or
// native archive tooling.
type Platform interface {
	// DeviceID returns a stable identifier for this device.
	DeviceID() (string, error)

	// ExtractArchive unpacks the archive at archivePath into destDir.
	ExtractArchive(ctx context.Context, archivePath, destDir string) error
}

// defaultPlatform persists a random device identifier and extracts zip
// archives in-process.
type defaultPlatform struct {
	dataDir string

	mu       sync.Mutex
	deviceID string
}

// Ensure defaultPlatform implements Platform.
var _ Platform = (*defaultPlatform)(nil)

// NewDefaultPlatform returns the built-in Platform. The device identifier
// is generated once and stored in dataDir.
func NewDefaultPlatform(dataDir string) Platform {
	return &defaultPlatform{dataDir: dataDir}
}

// DeviceID returns the stored identifier, generating it on first use.
func (p *defaultPlatform) DeviceID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deviceID != "" {
		return p.deviceID, nil
	}

	path := filepath.Join(p.dataDir, deviceIDFile)
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			p.deviceID = id
			return id, nil
		}
	}

	id := strings.ToUpper(uuid.NewString())
	if err := atomicWriteFile(path, []byte(id+"\n")); err != nil {
		return "", err
	}
	p.deviceID = id
	return id, nil
}

// ExtractArchive unpacks a zip archive. Entries escaping destDir, symlinks
// and AppleDouble metadata under __MACOSX/ are skipped.
func (p *defaultPlatform) ExtractArchive(ctx context.Context, archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer r.Close()

	root := filepath.Clean(destDir)
	var written int64
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := filepath.FromSlash(f.Name)
		if strings.HasPrefix(f.Name, "__MACOSX/") || f.Mode()&os.ModeSymlink != 0 {
			continue
		}

		target := filepath.Join(root, name)
		rel, err := filepath.Rel(root, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("archive entry %q escapes destination", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("creating %s: %w", rel, err)
			}
			continue
		}

		n, err := extractFile(f, target, maxExtractBytes-written)
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// extractFile writes a single archive entry, failing once more than limit
// bytes have been produced.
func extractFile(f *zip.File, target string, limit int64) (_ int64, err error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("creating parent of %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", f.Name, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if err != nil {
		return n, fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	if n > limit {
		return n, fmt.Errorf("archive exceeds %d bytes uncompressed", int64(maxExtractBytes))
	}
	return n, nil
}
