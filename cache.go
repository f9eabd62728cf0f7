package visionkit

import (
	"context"
	"errors"
	"fmt"
)

// metadataCache serializes CachedModelRecords into a CacheStore keyed by
// identity. Read failures are reported as absence.
type metadataCache struct {
	store  CacheStore
	logger Logger
}

func newMetadataCache(store CacheStore, logger Logger) *metadataCache {
	return &metadataCache{store: store, logger: logger}
}

// get returns the record for id. Absent, unreadable and malformed entries
// all report false.
func (c *metadataCache) get(ctx context.Context, id ModelIdentity) (CachedModelRecord, bool) {
	data, err := c.store.Get(ctx, id.Key())
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("cache read failed", "model", id.String(), "error", err)
		}
		return CachedModelRecord{}, false
	}

	var rec CachedModelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("discarding malformed cache record", "model", id.String(), "error", err)
		return CachedModelRecord{}, false
	}
	return rec, true
}

// put stores rec for id, overwriting any existing entry.
func (c *metadataCache) put(ctx context.Context, id ModelIdentity, rec CachedModelRecord) error {
	if rec.ColorMap == nil {
		rec.ColorMap = map[string]string{}
	}
	if rec.ClassLabels == nil {
		rec.ClassLabels = []string{}
	}
	if rec.Environment == nil {
		rec.Environment = map[string]any{}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	if err := c.store.Put(ctx, id.Key(), data); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}
	return nil
}

// invalidate removes the entry for id. Store errors are logged, never returned.
func (c *metadataCache) invalidate(ctx context.Context, id ModelIdentity) {
	if err := c.store.Delete(ctx, id.Key()); err != nil {
		c.logger.Warn("cache invalidation failed", "model", id.String(), "error", err)
	}
}
