// Package visionkit fetches, caches and loads vision models served by a
// remote model-hosting service.
//
// The package serves two primary use cases:
//
//  1. Programmatic API via the Loader interface - Applications use NewLoader
//     to create a Loader whose Load method returns a ready-to-run model
//     handle, acquiring and installing the model on first use.
//
//  2. Embeddable CLI via NewCommand - Parent CLI tools can attach a
//     "models" subcommand tree to their Cobra root command, providing
//     commands like "mytool models load crack-detect/3".
//
// # Acquisition
//
// A Load first consults the metadata cache. A complete record whose
// compiled artifact still exists is served directly, and a metadata refresh
// is issued in the background. Otherwise the Loader resolves metadata,
// applies the environment document's CLASS_LIST, downloads the model
// package, unpacks it when it is a zip archive, compiles it, installs it at
// <documents>/<name>-<version>.mlmodelc and writes the cache record.
//
// Any failure clears the cache record and starts over. Each Loader permits
// a fixed number of acquisition attempts over its lifetime (two by
// default); once they are spent, every cache miss fails with
// ErrModelLoadFailed.
//
// # Thread Safety
//
// The Loader interface is fully thread-safe. Concurrent loads of the same
// model share a single acquisition.
//
// # Storage
//
// Compiled models are stored in platform-appropriate directories:
//   - Linux: $XDG_DATA_HOME/<app>/models/ or ~/.local/share/<app>/models/
//   - macOS: ~/Library/Application Support/<app>/models/
//   - Windows: %LOCALAPPDATA%\<app>\models\
//
// The storage location can be overridden via Config.DataDir or the
// <APPNAME>_MODELS_DIR environment variable. Cache records are kept in a
// FileStore under the storage directory unless another CacheStore, such as
// a SQLiteStore, is supplied with WithCacheStore.
package visionkit
