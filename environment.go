package visionkit

import "context"

// classListKey is the environment document key whose string list replaces
// the metadata's class labels.
const classListKey = "CLASS_LIST"

// resolveEnvironment fetches the environment document referenced by md and
// returns it. When the document carries a CLASS_LIST of strings, that list
// replaces md.ClassLabels outright. Any failure leaves md untouched and
// yields an empty document.
func (c *serviceClient) resolveEnvironment(ctx context.Context, md *ModelMetadata) map[string]any {
	if md.EnvironmentURL == "" {
		return map[string]any{}
	}

	var env map[string]any
	if err := c.fetchJSON(ctx, md.EnvironmentURL, nil, &env, ErrMetadataFetch); err != nil {
		c.logger.Debug("environment unavailable, keeping metadata classes", "error", err)
		return map[string]any{}
	}
	if env == nil {
		return map[string]any{}
	}

	if classes, ok := stringList(env[classListKey]); ok {
		md.ClassLabels = classes
	}
	return env
}

// stringList converts a decoded JSON array of strings. Any non-string
// element makes the whole value unusable.
func stringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
