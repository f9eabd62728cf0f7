package visionkit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// metadataResponse is the body returned by GET /coreml/<name>/<version>.
type metadataResponse struct {
	CoreML *coreMLEntry `json:"coreml"`
}

// coreMLEntry is the typed subcontainer of a metadata response. Optional
// fields are kept raw so a malformed optional value does not fail the parse.
type coreMLEntry struct {
	// Name is the display name.
	Name string `json:"name"`

	// ModelType is the architecture string, e.g. "yolov8-seg".
	ModelType string `json:"modelType"`

	// Model is the signed download URL of the model package.
	Model string `json:"model"`

	Colors      jsoniter.RawMessage `json:"colors,omitempty"`
	Classes     jsoniter.RawMessage `json:"classes,omitempty"`
	Environment jsoniter.RawMessage `json:"environment,omitempty"`
}

// serviceClient handles HTTP communication with the model-hosting service.
type serviceClient struct {
	// baseURL is the service base URL, without trailing slash.
	baseURL string

	apiKey   string
	bundleID string

	// deviceID is sent with every metadata request.
	deviceID string

	transport *transport

	// timeout bounds each metadata and environment request.
	timeout time.Duration

	logger Logger
}

// newServiceClient creates a new service client.
// The baseURL is normalized by removing any trailing slashes.
func newServiceClient(baseURL, apiKey, bundleID, deviceID string, t *transport, timeout time.Duration, logger Logger) *serviceClient {
	return &serviceClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		bundleID:  bundleID,
		deviceID:  deviceID,
		transport: t,
		timeout:   timeout,
		logger:    logger,
	}
}

// metadataURL builds <apiURL>/coreml/<name>/<version>?api_key=..&device=..&bundle=..
func (c *serviceClient) metadataURL(id ModelIdentity) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("device", c.deviceID)
	q.Set("bundle", c.bundleID)
	return c.baseURL + "/coreml/" + url.PathEscape(id.Name) + "/" + strconv.Itoa(id.Version) + "?" + q.Encode()
}

// fetchJSON fetches rawURL and decodes the body into out.
// kind is the sentinel wrapped around transport failures.
func (c *serviceClient) fetchJSON(ctx context.Context, rawURL string, header http.Header, out any, kind error) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	body, _, err := c.transport.open(ctx, rawURL, header)
	if err != nil {
		return stageError(ctx, kind, "request", err)
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return stageError(ctx, kind, "reading body", err)
		}
		return fmt.Errorf("%w: decoding body: %v", ErrMetadataParse, err)
	}
	return nil
}

// fetchMetadata resolves id into model metadata. Every required field must
// be present; partial metadata is never returned.
func (c *serviceClient) fetchMetadata(ctx context.Context, id ModelIdentity) (ModelMetadata, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp metadataResponse
	if err := c.fetchJSON(ctx, c.metadataURL(id), header, &resp, ErrMetadataFetch); err != nil {
		return ModelMetadata{}, err
	}

	entry := resp.CoreML
	switch {
	case entry == nil:
		return ModelMetadata{}, fmt.Errorf("%w: missing coreml object", ErrMetadataParse)
	case entry.Name == "":
		return ModelMetadata{}, fmt.Errorf("%w: missing name", ErrMetadataParse)
	case entry.ModelType == "":
		return ModelMetadata{}, fmt.Errorf("%w: missing modelType", ErrMetadataParse)
	case entry.Model == "":
		return ModelMetadata{}, fmt.Errorf("%w: missing model url", ErrMetadataParse)
	}

	downloadURL, err := url.Parse(entry.Model)
	if err != nil || downloadURL.Scheme == "" {
		return ModelMetadata{}, fmt.Errorf("%w: invalid model url", ErrMetadataParse)
	}

	md := ModelMetadata{
		ModelType:   entry.ModelType,
		DisplayName: entry.Name,
		DownloadURL: downloadURL,
	}
	decodeOptional(entry.Colors, &md.ColorMap)
	decodeOptional(entry.Classes, &md.ClassLabels)
	decodeOptional(entry.Environment, &md.EnvironmentURL)

	c.logger.Debug("metadata resolved",
		"model", id.String(),
		"type", md.ModelType,
		"classes", len(md.ClassLabels),
	)
	return md, nil
}

// refresh re-requests the metadata for id and discards the result.
func (c *serviceClient) refresh(ctx context.Context, id ModelIdentity) error {
	_, err := c.fetchMetadata(ctx, id)
	return err
}

// decodeOptional decodes raw into out, leaving out untouched when raw is
// absent or of the wrong shape.
func decodeOptional[T any](raw jsoniter.RawMessage, out *T) {
	if len(raw) == 0 {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err == nil {
		*out = v
	}
}
