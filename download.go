package visionkit

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// downloadedArtifact is a model package fetched into the scratch directory.
type downloadedArtifact struct {
	// Path is the local file holding the downloaded bytes.
	Path string

	// SourceURL is the URL the bytes were fetched from. Archive detection
	// looks at it as well as at Path.
	SourceURL *url.URL

	// Size is the number of bytes written.
	Size int64
}

// downloader streams model packages to disk. It never retries.
type downloader struct {
	transport *transport

	// timeout bounds a single download.
	timeout time.Duration

	logger Logger
}

func newDownloader(t *transport, timeout time.Duration, logger Logger) *downloader {
	return &downloader{transport: t, timeout: timeout, logger: logger}
}

// download fetches u into a new file in dir. The progressFn receives
// cumulative bytes and the expected total (-1 when unknown).
func (d *downloader) download(ctx context.Context, u *url.URL, dir string, progressFn func(done, total int64)) (downloadedArtifact, error) {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	body, total, err := d.transport.open(ctx, u.String(), nil)
	if err != nil {
		return downloadedArtifact{}, stageError(ctx, ErrDownload, "request", err)
	}
	defer body.Close()

	f, err := os.CreateTemp(dir, "download-*"+downloadExt(u))
	if err != nil {
		return downloadedArtifact{}, fmt.Errorf("%w: creating temp file: %v", ErrDownload, err)
	}

	var reader io.Reader = body
	if progressFn != nil {
		var done int64
		reader = &progressReader{reader: body, onProgress: func(delta int64) {
			done += delta
			progressFn(done, total)
		}}
	}

	n, err := io.Copy(f, reader)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return downloadedArtifact{}, stageError(ctx, ErrDownload, "writing "+redactURL(u), err)
	}
	if n == 0 {
		os.Remove(f.Name())
		return downloadedArtifact{}, fmt.Errorf("%w: empty response from %s", ErrDownload, redactURL(u))
	}

	d.logger.Info("model package downloaded", "url", redactURL(u), "size", units.HumanSize(float64(n)))

	return downloadedArtifact{Path: f.Name(), SourceURL: u, Size: n}, nil
}

// downloadExt keeps the URL's extension on the temp file so later stages
// can recognise archives by name.
func downloadExt(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}

// progressReader wraps an io.Reader and reports progress as bytes are read.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	return
}
