package visionkit

import (
	"net/http"
	"time"
)

const (
	// DefaultRetryBudget is the number of full acquisition attempts a Loader
	// permits over its lifetime.
	DefaultRetryBudget = 2

	// DefaultRequestTimeout is the default timeout for metadata and
	// environment requests.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultDownloadTimeout is the default timeout for a model package download.
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultRefreshTimeout bounds the background metadata refresh.
	DefaultRefreshTimeout = 30 * time.Second

	// ScratchMaxAge is the age after which PruneScratch removes leftovers.
	ScratchMaxAge = 24 * time.Hour
)

// LoaderOption configures a Loader.
type LoaderOption func(*loaderConfig)

// loaderConfig holds configuration for Loader construction.
type loaderConfig struct {
	// httpClient is used for all HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic log messages.
	logger Logger

	// store persists cache records. Nil selects a file store in the data dir.
	store CacheStore

	compiler Compiler
	runtime  Runtime
	platform Platform

	// retryBudget is the initial retry budget.
	retryBudget int

	requestTimeout  time.Duration
	downloadTimeout time.Duration

	// backgroundRefresh enables the metadata refresh on cache hits.
	backgroundRefresh bool

	// progressFn is called with progress updates during acquisition.
	progressFn func(LoadProgress)
}

// newLoaderConfig returns a loaderConfig with default values.
func newLoaderConfig() *loaderConfig {
	return &loaderConfig{
		httpClient:        http.DefaultClient,
		retryBudget:       DefaultRetryBudget,
		requestTimeout:    DefaultRequestTimeout,
		downloadTimeout:   DefaultDownloadTimeout,
		backgroundRefresh: true,
	}
}

// WithHTTPClient sets a custom HTTP client for all requests.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client HTTPClient) LoaderOption {
	return func(c *loaderConfig) {
		c.httpClient = client
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) LoaderOption {
	return func(c *loaderConfig) {
		c.logger = logger
	}
}

// WithCacheStore sets the durable store for cached model records.
// If not set, a FileStore in the data directory is used.
func WithCacheStore(store CacheStore) LoaderOption {
	return func(c *loaderConfig) {
		c.store = store
	}
}

// WithCompiler sets the model compiler.
// If not set, PassthroughCompiler is used.
func WithCompiler(compiler Compiler) LoaderOption {
	return func(c *loaderConfig) {
		c.compiler = compiler
	}
}

// WithRuntime sets the inference runtime that opens compiled models.
// If not set, handles are plain *CompiledModel descriptors.
func WithRuntime(runtime Runtime) LoaderOption {
	return func(c *loaderConfig) {
		c.runtime = runtime
	}
}

// WithPlatform sets the platform adapter used for device identifiers and
// archive extraction.
func WithPlatform(platform Platform) LoaderOption {
	return func(c *loaderConfig) {
		c.platform = platform
	}
}

// WithRetryBudget sets the number of acquisition attempts the Loader permits.
// Negative values are clamped to 0.
func WithRetryBudget(n int) LoaderOption {
	return func(c *loaderConfig) {
		if n < 0 {
			n = 0
		}
		c.retryBudget = n
	}
}

// WithRequestTimeout sets the timeout for metadata and environment requests.
// Non-positive values disable the timeout.
func WithRequestTimeout(d time.Duration) LoaderOption {
	return func(c *loaderConfig) {
		c.requestTimeout = d
	}
}

// WithDownloadTimeout sets the timeout for model package downloads.
// Non-positive values disable the timeout.
func WithDownloadTimeout(d time.Duration) LoaderOption {
	return func(c *loaderConfig) {
		c.downloadTimeout = d
	}
}

// WithBackgroundRefresh enables or disables the metadata refresh issued
// after a cache hit. Enabled by default.
func WithBackgroundRefresh(enabled bool) LoaderOption {
	return func(c *loaderConfig) {
		c.backgroundRefresh = enabled
	}
}

// WithProgress sets a callback for progress updates during acquisition.
// The callback is invoked from the loading goroutine.
func WithProgress(fn func(LoadProgress)) LoaderOption {
	return func(c *loaderConfig) {
		c.progressFn = fn
	}
}

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus (via NewLogrusLogger), and other structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}
