package visionkit

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultAPIURL is the model-hosting service used when Config.APIURL is empty.
const DefaultAPIURL = "https://api.roboflow.com"

// DefaultBundleID is sent as the bundle parameter when Config.BundleID is empty.
const DefaultBundleID = "nobundle"

// Config configures a Loader.
type Config struct {
	// AppName determines the storage directory name.
	// Example: "visionkit" → ~/.local/share/visionkit/models/ on Linux
	AppName string

	// APIKey authenticates metadata requests.
	APIKey string

	// APIURL is the base URL of the model-hosting service.
	// If empty, DefaultAPIURL is used.
	APIURL string

	// BundleID identifies the calling application.
	// If empty, DefaultBundleID is used.
	BundleID string

	// DataDir overrides the default documents directory where compiled
	// models are installed.
	// If empty, uses platform-appropriate default.
	// Can also be set via environment variable: <APPNAME>_MODELS_DIR
	DataDir string

	// ScratchDir overrides the directory used for downloads and archive
	// extraction. If empty, a directory under os.TempDir() is used.
	ScratchDir string
}

// ModelIdentity identifies a requestable model.
type ModelIdentity struct {
	// Name is the model (project) name, e.g. "crack-detect".
	Name string

	// Version is the model version number.
	Version int
}

// Key returns the string used for cache entries and artifact file names:
// "name-version".
func (id ModelIdentity) Key() string {
	return id.Name + "-" + strconv.Itoa(id.Version)
}

// String returns the canonical string form: "name/version".
func (id ModelIdentity) String() string {
	return id.Name + "/" + strconv.Itoa(id.Version)
}

// Validate reports whether the identity can be used for requests and paths.
func (id ModelIdentity) Validate() error {
	if id.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentity)
	}
	if strings.ContainsAny(id.Name, `/\`) || id.Name == "." || id.Name == ".." {
		return fmt.Errorf("%w: name %q contains a path separator", ErrInvalidIdentity, id.Name)
	}
	if id.Version < 0 {
		return fmt.Errorf("%w: negative version %d", ErrInvalidIdentity, id.Version)
	}
	return nil
}

// ParseModelIdentity parses "name/version" or "name version" into a ModelIdentity.
// Returns ErrInvalidIdentity if the format is invalid.
func ParseModelIdentity(s string) (ModelIdentity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModelIdentity{}, ErrInvalidIdentity
	}

	sep := strings.LastIndexAny(s, "/ ")
	if sep <= 0 || sep == len(s)-1 {
		return ModelIdentity{}, ErrInvalidIdentity
	}

	version, err := strconv.Atoi(strings.TrimSpace(s[sep+1:]))
	if err != nil {
		return ModelIdentity{}, fmt.Errorf("%w: version %q is not a number", ErrInvalidIdentity, s[sep+1:])
	}

	id := ModelIdentity{Name: strings.TrimSpace(s[:sep]), Version: version}
	if err := id.Validate(); err != nil {
		return ModelIdentity{}, err
	}
	return id, nil
}

// ModelMetadata describes a model as reported by the hosting service.
type ModelMetadata struct {
	// ModelType is the architecture string, e.g. "yolov8-seg".
	ModelType string

	// DisplayName is the human-readable model name.
	DisplayName string

	// ClassLabels is the ordered list of class names.
	ClassLabels []string

	// ColorMap maps class labels to display colors.
	ColorMap map[string]string

	// DownloadURL is the signed URL of the model package.
	DownloadURL *url.URL

	// EnvironmentURL points at the environment document. May be empty.
	EnvironmentURL string
}

// CachedModelRecord is the metadata persisted for an installed model.
// JSON field names match the layout written by earlier releases.
type CachedModelRecord struct {
	// InstalledPath is the artifact path relative to the documents directory.
	InstalledPath string `json:"compiledModelURL"`

	// ColorMap maps class labels to display colors.
	ColorMap map[string]string `json:"colors"`

	// ClassLabels is the ordered list of class names.
	ClassLabels []string `json:"classes"`

	// DisplayName is the human-readable model name.
	DisplayName string `json:"name"`

	// ModelType is the architecture string.
	ModelType string `json:"modelType"`

	// Environment holds the decoded environment document.
	Environment map[string]any `json:"environment"`
}

// valid reports whether the record has every field needed to build a model.
func (r CachedModelRecord) valid() bool {
	return r.InstalledPath != "" && r.DisplayName != "" && r.ModelType != ""
}

// LoadResult is the outcome of a successful Load.
type LoadResult struct {
	// Model is the runtime handle for the compiled model.
	Model ModelHandle

	// DisplayName is the resolved human-readable model name.
	DisplayName string

	// ModelType is the resolved architecture string.
	ModelType string

	// Variant is the model family derived from ModelType.
	Variant Variant

	// FromCache reports whether the result was served from the metadata cache.
	FromCache bool
}

// LoadProgress reports progress during an acquisition.
type LoadProgress struct {
	// Phase is one of "metadata", "download", "unpack", "compile", "install".
	Phase string

	// Attempt is the 1-based acquisition attempt for this Load call.
	Attempt int

	// BytesTotal is the expected download size, or -1 when unknown.
	BytesTotal int64

	// BytesCompleted is the number of bytes downloaded so far.
	BytesCompleted int64
}
