package visionkit

import "errors"

// Sentinel errors for model acquisition.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrModelLoadFailed is the terminal error returned once the retry budget
	// is exhausted. It is the only error kind callers of Load need to handle.
	ErrModelLoadFailed = errors.New("visionkit: model load failed")

	// ErrMetadataFetch indicates the metadata request could not be completed.
	ErrMetadataFetch = errors.New("visionkit: metadata fetch failed")

	// ErrMetadataParse indicates the metadata response was missing a required field.
	ErrMetadataParse = errors.New("visionkit: invalid metadata response")

	// ErrDownload indicates the model package could not be downloaded.
	ErrDownload = errors.New("visionkit: download failed")

	// ErrArchiveExtraction indicates an archive could not be extracted
	// or contained no model file.
	ErrArchiveExtraction = errors.New("visionkit: archive extraction failed")

	// ErrCompilation indicates the compiler produced no usable output.
	ErrCompilation = errors.New("visionkit: model compilation failed")

	// ErrInstall indicates the compiled model could be neither moved nor copied
	// into place.
	ErrInstall = errors.New("visionkit: model install failed")

	// ErrCacheSerialization indicates a cache record could not be encoded.
	ErrCacheSerialization = errors.New("visionkit: cache serialization failed")

	// ErrCacheMiss is returned by a CacheStore when a key is absent.
	ErrCacheMiss = errors.New("visionkit: cache miss")

	// ErrTimeout indicates a network request exceeded the request timeout.
	ErrTimeout = errors.New("visionkit: request timed out")

	// ErrStorageError indicates a filesystem operation failed.
	ErrStorageError = errors.New("visionkit: storage error")

	// ErrNotInstalled indicates the model has no cached record or installed artifact.
	ErrNotInstalled = errors.New("visionkit: model not installed")

	// ErrLoaderClosed is passed to LoadAsync callbacks issued after Close.
	ErrLoaderClosed = errors.New("visionkit: loader closed")

	// ErrInvalidIdentity indicates an invalid model identity.
	ErrInvalidIdentity = errors.New("visionkit: invalid model identity")
)
