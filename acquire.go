package visionkit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// loader is the concrete implementation of the Loader interface.
type loader struct {
	// cfg holds the module configuration.
	cfg Config

	// logger receives diagnostic messages. Never nil.
	logger Logger

	// storage handles the documents and scratch directories.
	storage *storage

	cache      *metadataCache
	client     *serviceClient
	downloader *downloader
	compiler   Compiler
	runtime    Runtime
	platform   Platform

	backgroundRefresh bool
	progressFn        func(LoadProgress)

	// inflight collapses concurrent loads of the same identity.
	inflight singleflight.Group

	// mu guards retries and closed.
	mu      sync.Mutex
	retries int
	closed  bool

	// wg tracks background refreshes and LoadAsync goroutines.
	wg sync.WaitGroup
}

// Load returns a handle for id.
func (l *loader) Load(ctx context.Context, id ModelIdentity) (LoadResult, error) {
	if err := id.Validate(); err != nil {
		return LoadResult{}, fmt.Errorf("%w: %w", ErrModelLoadFailed, err)
	}

	v, err, shared := l.inflight.Do(id.Key(), func() (any, error) {
		return l.load(ctx, id)
	})
	if shared {
		l.logger.Debug("joined in-flight load", "model", id.String())
	}
	if err != nil {
		return LoadResult{}, err
	}
	return v.(LoadResult), nil
}

// load runs the cache check and acquisition loop for id.
func (l *loader) load(ctx context.Context, id ModelIdentity) (LoadResult, error) {
	var lastErr error
	attempt := 0

	for {
		if res, ok := l.loadCached(ctx, id); ok {
			l.startRefresh(id)
			return res, nil
		}

		if err := ctx.Err(); err != nil {
			return LoadResult{}, fmt.Errorf("%w: %w", ErrModelLoadFailed, err)
		}

		if !l.takeRetry() {
			l.logger.Error("retry budget exhausted", "model", id.String(), "error", lastErr)
			if lastErr != nil {
				return LoadResult{}, fmt.Errorf("%w: %w", ErrModelLoadFailed, lastErr)
			}
			return LoadResult{}, ErrModelLoadFailed
		}

		attempt++
		l.cache.invalidate(ctx, id)

		res, err := l.acquire(ctx, id, attempt)
		if err == nil {
			return res, nil
		}

		l.logger.Warn("acquisition failed",
			"model", id.String(),
			"attempt", attempt,
			"retries_remaining", l.RetriesRemaining(),
			"error", err,
		)
		lastErr = err
		l.cache.invalidate(ctx, id)
	}
}

// loadCached serves id from the metadata cache. Records that are
// incomplete, point at a missing artifact, or cannot be opened by the
// runtime count as misses.
func (l *loader) loadCached(ctx context.Context, id ModelIdentity) (LoadResult, bool) {
	rec, ok := l.cache.get(ctx, id)
	if !ok {
		return LoadResult{}, false
	}
	if !rec.valid() {
		l.logger.Debug("cache record incomplete", "model", id.String())
		return LoadResult{}, false
	}

	path, err := l.storage.resolveArtifact(rec.InstalledPath)
	if err != nil {
		l.logger.Warn("cache record has unusable path", "model", id.String(), "error", err)
		return LoadResult{}, false
	}
	if !exists(path) {
		l.logger.Info("cached artifact missing", "model", id.String(), "path", path)
		return LoadResult{}, false
	}

	variant := ClassifyModelType(rec.ModelType)
	handle, err := l.runtime.Load(ctx, variant, CompiledModelSpec{
		Path:        path,
		ClassLabels: rec.ClassLabels,
		ColorMap:    rec.ColorMap,
		Environment: rec.Environment,
	})
	if err != nil {
		l.logger.Warn("cached model could not be opened", "model", id.String(), "error", err)
		return LoadResult{}, false
	}

	return LoadResult{
		Model:       handle,
		DisplayName: rec.DisplayName,
		ModelType:   rec.ModelType,
		Variant:     variant,
		FromCache:   true,
	}, true
}

// acquire runs one full pass of the pipeline: metadata, environment,
// download, unpack, compile, install and cache write.
func (l *loader) acquire(ctx context.Context, id ModelIdentity, attempt int) (LoadResult, error) {
	l.progress(LoadProgress{Phase: "metadata", Attempt: attempt})

	md, err := l.client.fetchMetadata(ctx, id)
	if err != nil {
		return LoadResult{}, err
	}
	env := l.client.resolveEnvironment(ctx, &md)

	work, err := l.storage.newScratchDir("acquire")
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer os.RemoveAll(work)

	l.progress(LoadProgress{Phase: "download", Attempt: attempt, BytesTotal: -1})
	artifact, err := l.downloader.download(ctx, md.DownloadURL, work, func(done, total int64) {
		l.progress(LoadProgress{Phase: "download", Attempt: attempt, BytesTotal: total, BytesCompleted: done})
	})
	if err != nil {
		return LoadResult{}, err
	}

	rawPath := artifact.Path
	if isArchive(artifact) {
		l.progress(LoadProgress{Phase: "unpack", Attempt: attempt})
		rawPath, err = unpackModel(ctx, l.platform, artifact.Path, work, l.logger)
		if err != nil {
			return LoadResult{}, err
		}
	}

	l.progress(LoadProgress{Phase: "compile", Attempt: attempt})
	compiled, err := l.compile(ctx, rawPath, work)
	if err != nil {
		return LoadResult{}, err
	}

	l.progress(LoadProgress{Phase: "install", Attempt: attempt})
	rel, err := l.storage.install(id, compiled)
	if err != nil {
		return LoadResult{}, err
	}

	rec := CachedModelRecord{
		InstalledPath: rel,
		ColorMap:      md.ColorMap,
		ClassLabels:   md.ClassLabels,
		DisplayName:   md.DisplayName,
		ModelType:     md.ModelType,
		Environment:   env,
	}
	if err := l.cache.put(ctx, id, rec); err != nil {
		return LoadResult{}, err
	}

	variant := ClassifyModelType(md.ModelType)
	handle, err := l.runtime.Load(ctx, variant, CompiledModelSpec{
		Path:        l.storage.artifactPath(id),
		ClassLabels: md.ClassLabels,
		ColorMap:    md.ColorMap,
		Environment: env,
	})
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: opening compiled model: %w", ErrCompilation, err)
	}

	l.logger.Info("model installed",
		"model", id.String(),
		"type", md.ModelType,
		"variant", variant.String(),
		"attempt", attempt,
	)

	return LoadResult{
		Model:       handle,
		DisplayName: md.DisplayName,
		ModelType:   md.ModelType,
		Variant:     variant,
	}, nil
}

// compile runs the compiler into a directory under work and checks that
// the reported artifact exists.
func (l *loader) compile(ctx context.Context, rawPath, work string) (string, error) {
	outDir := filepath.Join(work, "compiled")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompilation, err)
	}

	compiled, err := l.compiler.Compile(ctx, rawPath, outDir)
	if err != nil {
		if errors.Is(err, ErrCompilation) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrCompilation, err)
	}
	if compiled == "" || !exists(compiled) {
		return "", fmt.Errorf("%w: compiler reported %q which does not exist", ErrCompilation, compiled)
	}
	return compiled, nil
}

// takeRetry consumes one unit of the retry budget. It reports false once
// the budget is spent.
func (l *loader) takeRetry() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.retries <= 0 {
		return false
	}
	l.retries--
	return true
}

// RetriesRemaining returns the unused part of the retry budget.
func (l *loader) RetriesRemaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retries
}

// startRefresh re-requests the metadata for id in the background. The
// result is discarded and never written to the cache.
// TODO: persist refreshed metadata once the service exposes a version
// marker to compare against the cached record.
func (l *loader) startRefresh(id ModelIdentity) {
	if !l.backgroundRefresh {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), DefaultRefreshTimeout)
		defer cancel()

		if err := l.client.refresh(ctx, id); err != nil {
			l.logger.Debug("background refresh failed", "model", id.String(), "error", err)
			return
		}
		l.logger.Debug("background refresh completed", "model", id.String())
	}()
}

func (l *loader) progress(p LoadProgress) {
	if l.progressFn != nil {
		l.progressFn(p)
	}
}

// LoadAsync runs Load on a new goroutine and passes the outcome to fn.
// After Close no load is started and fn receives ErrLoaderClosed.
func (l *loader) LoadAsync(ctx context.Context, id ModelIdentity, fn func(LoadResult, error)) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if fn != nil {
			fn(LoadResult{}, fmt.Errorf("%w: %w", ErrModelLoadFailed, ErrLoaderClosed))
		}
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		res, err := l.Load(ctx, id)
		if fn != nil {
			fn(res, err)
		}
	}()
}

// ClearCache removes the cached record for id.
func (l *loader) ClearCache(ctx context.Context, id ModelIdentity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	l.cache.invalidate(ctx, id)
	return nil
}

// RemoveArtifact clears the cached record for id and deletes its artifact.
func (l *loader) RemoveArtifact(ctx context.Context, id ModelIdentity) error {
	if err := l.ClearCache(ctx, id); err != nil {
		return err
	}
	return withFileLock(l.storage.lockPath(id), l.storage.lockTimeout, func() error {
		return l.storage.removeArtifact(id)
	})
}

// Cached returns the cached record for id, if any.
func (l *loader) Cached(ctx context.Context, id ModelIdentity) (CachedModelRecord, bool) {
	if id.Validate() != nil {
		return CachedModelRecord{}, false
	}
	return l.cache.get(ctx, id)
}

// ArtifactPath returns the absolute path where id is installed.
func (l *loader) ArtifactPath(id ModelIdentity) string {
	return l.storage.artifactPath(id)
}

// PruneScratch removes scratch entries older than maxAge.
func (l *loader) PruneScratch(maxAge time.Duration) (int, error) {
	return l.storage.pruneScratch(maxAge)
}

// Close waits for background work to finish.
func (l *loader) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}
