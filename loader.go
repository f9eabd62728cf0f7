package visionkit

import (
	"context"
	"errors"
	"path/filepath"
	"time"
)

// Loader acquires models and hands back ready-to-run handles.
// All methods are safe for concurrent use.
// For CLI integration, use NewCommand instead.
type Loader interface {
	// Load returns a handle for id, serving it from the local cache when
	// possible and acquiring it from the service otherwise. Failed
	// acquisitions are retried until the Loader's retry budget runs out,
	// after which every miss fails with ErrModelLoadFailed.
	Load(ctx context.Context, id ModelIdentity) (LoadResult, error)

	// LoadAsync runs Load on a new goroutine and passes the outcome to fn.
	// Once the loader is closed fn receives ErrLoaderClosed instead.
	LoadAsync(ctx context.Context, id ModelIdentity, fn func(LoadResult, error))

	// ClearCache removes the cached record for id. Clearing an absent
	// record is not an error. The installed artifact is left in place.
	ClearCache(ctx context.Context, id ModelIdentity) error

	// RemoveArtifact clears the cached record for id and deletes its
	// installed artifact.
	RemoveArtifact(ctx context.Context, id ModelIdentity) error

	// Cached returns the cached record for id, if any.
	Cached(ctx context.Context, id ModelIdentity) (CachedModelRecord, bool)

	// ArtifactPath returns the absolute path where id is installed.
	ArtifactPath(id ModelIdentity) string

	// RetriesRemaining returns the unused part of the retry budget.
	RetriesRemaining() int

	// PruneScratch removes downloads and extraction directories older than
	// maxAge. Returns the number of entries removed.
	PruneScratch(maxAge time.Duration) (int, error)

	// Close waits for background refreshes and LoadAsync calls to finish.
	// Loads started after Close do not launch background refreshes.
	Close() error
}

// Ensure loader implements Loader interface.
var _ Loader = (*loader)(nil)

// NewLoader creates a new Loader with the given configuration.
// Returns an error if the configuration is invalid (empty AppName or APIKey).
func NewLoader(cfg Config, opts ...LoaderOption) (Loader, error) {
	if cfg.AppName == "" {
		return nil, errors.New("visionkit: AppName is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("visionkit: APIKey is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.BundleID == "" {
		cfg.BundleID = DefaultBundleID
	}

	lcfg := newLoaderConfig()
	for _, opt := range opts {
		opt(lcfg)
	}
	if lcfg.logger == nil {
		lcfg.logger = discardLogger{}
	}
	if lcfg.compiler == nil {
		lcfg.compiler = PassthroughCompiler{}
	}
	if lcfg.runtime == nil {
		lcfg.runtime = descriptorRuntime{}
	}

	storage, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}

	if lcfg.platform == nil {
		lcfg.platform = NewDefaultPlatform(storage.baseDir)
	}

	if lcfg.store == nil {
		fs, err := NewFileStore(filepath.Join(storage.baseDir, ".cache"))
		if err != nil {
			return nil, err
		}
		lcfg.store = fs
	}

	deviceID, err := lcfg.platform.DeviceID()
	if err != nil {
		lcfg.logger.Warn("device id unavailable", "error", err)
	}

	t := newTransport(lcfg.httpClient)

	return &loader{
		cfg:               cfg,
		logger:            lcfg.logger,
		storage:           storage,
		cache:             newMetadataCache(lcfg.store, lcfg.logger),
		client:            newServiceClient(cfg.APIURL, cfg.APIKey, cfg.BundleID, deviceID, t, lcfg.requestTimeout, lcfg.logger),
		downloader:        newDownloader(t, lcfg.downloadTimeout, lcfg.logger),
		compiler:          lcfg.compiler,
		runtime:           lcfg.runtime,
		platform:          lcfg.platform,
		retries:           lcfg.retryBudget,
		backgroundRefresh: lcfg.backgroundRefresh,
		progressFn:        lcfg.progressFn,
	}, nil
}
