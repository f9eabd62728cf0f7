// Command visionkit is a test CLI harness for the visionkit package.
// It demonstrates the CLI integration and provides a working example.
//
// Configuration is loaded from VISIONKIT_* environment variables and an
// optional visionkit.yaml in the user config directory:
//   - VISIONKIT_API_KEY: API key for the model-hosting service (required)
//   - VISIONKIT_API_URL: Service base URL (optional)
//   - VISIONKIT_BUNDLE_ID: Bundle identifier sent with requests (optional)
//   - VISIONKIT_MODELS_DIR: Override for the documents directory (optional)
//   - VISIONKIT_SCRATCH_DIR: Override for the scratch directory (optional)
//   - VISIONKIT_STORE: Cache backend, "file" (default) or "sqlite"
//   - VISIONKIT_COMPILER: "passthrough" (default) or "xcrun"
//   - VISIONKIT_LOG_LEVEL: logrus level (default "warning")
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	visionkit "github.com/usmanthesuper/VisionKitAi"
)

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid command line arguments.
	ExitInvalidArgs = 2

	// ExitLoadFailed indicates the retry budget was spent without a model.
	ExitLoadFailed = 3

	// ExitNotInstalled indicates the model is not installed locally.
	ExitNotInstalled = 4

	// ExitNetworkError indicates a network or service failure.
	ExitNetworkError = 5

	// ExitStorageError indicates a filesystem operation failed.
	ExitStorageError = 7
)

const appName = "visionkit"

func main() {
	v, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitInvalidArgs)
	}

	apiKey := v.GetString("api_key")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: VISIONKIT_API_KEY environment variable is required")
		os.Exit(ExitInvalidArgs)
	}

	cfg := visionkit.Config{
		AppName:    appName,
		APIKey:     apiKey,
		APIURL:     v.GetString("api_url"),
		BundleID:   v.GetString("bundle_id"),
		ScratchDir: v.GetString("scratch_dir"),
		// DataDir can be set via VISIONKIT_MODELS_DIR env var (handled by storage layer)
	}

	logger := newLogger(v.GetString("log_level"))
	opts := []visionkit.LoaderOption{
		visionkit.WithLogger(visionkit.NewLogrusLogger(logrus.NewEntry(logger))),
	}

	switch v.GetString("compiler") {
	case "xcrun":
		opts = append(opts, visionkit.WithCompiler(visionkit.CommandCompiler{}))
	case "", "passthrough":
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown compiler %q\n", v.GetString("compiler"))
		os.Exit(ExitInvalidArgs)
	}

	closeStore := func() error { return nil }
	switch v.GetString("store") {
	case "sqlite":
		store, err := visionkit.OpenSQLiteStore(v.GetString("sqlite_path"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitCodeFromError(err))
		}
		closeStore = store.Close
		opts = append(opts, visionkit.WithCacheStore(store))
	case "", "file":
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown store %q\n", v.GetString("store"))
		os.Exit(ExitInvalidArgs)
	}

	cmd := visionkit.NewCommand(cfg, opts...)
	err = cmd.Execute()
	closeStore()
	if err != nil {
		os.Exit(exitCodeFromError(err))
	}
}

// loadConfig reads VISIONKIT_* variables and the optional config file.
func loadConfig() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(appName)
	v.AutomaticEnv()

	v.SetDefault("api_url", visionkit.DefaultAPIURL)
	v.SetDefault("bundle_id", visionkit.DefaultBundleID)
	v.SetDefault("store", "file")
	v.SetDefault("compiler", "passthrough")
	v.SetDefault("log_level", "warning")
	if dir, err := os.UserCacheDir(); err == nil {
		v.SetDefault("sqlite_path", filepath.Join(dir, appName, "cache.db"))
	}

	if file := os.Getenv("VISIONKIT_CONFIG"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if path := v.GetString("sqlite_path"); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	return v, nil
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, visionkit.ErrInvalidIdentity):
		return ExitInvalidArgs
	case errors.Is(err, visionkit.ErrNotInstalled):
		return ExitNotInstalled
	case errors.Is(err, visionkit.ErrModelLoadFailed):
		return ExitLoadFailed
	case errors.Is(err, visionkit.ErrMetadataFetch), errors.Is(err, visionkit.ErrDownload), errors.Is(err, visionkit.ErrTimeout):
		return ExitNetworkError
	case errors.Is(err, visionkit.ErrStorageError):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}
