package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"intizar/internal/models"
	"intizar/internal/redis"
)

const listCacheKey = "catalog:documents"

// listCache keeps the last sorted listing in the shared store. Every failure
// is logged and treated as a miss.
//
// gen counts invalidations. A listing read before an invalidation is never
// saved after it.
type listCache struct {
	store redis.Store
	ttl   time.Duration

	mu  sync.Mutex
	gen uint64
}

// generation is taken before reading the repository and handed back to save.
func (c *listCache) generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *listCache) load(ctx context.Context) ([]models.Document, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	raw, err := c.store.Get(ctx, listCacheKey)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			slog.Warn("catalog cache load failed", "error", err)
		}
		return nil, false
	}
	var docs []models.Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		slog.Warn("catalog cache decode failed", "error", err)
		return nil, false
	}
	return docs, true
}

func (c *listCache) save(ctx context.Context, gen uint64, docs []models.Document) {
	if c == nil || c.store == nil {
		return
	}
	data, err := json.Marshal(docs)
	if err != nil {
		slog.Warn("catalog cache marshal failed", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		slog.Debug("catalog listing outdated, not cached", "read_gen", gen, "gen", c.gen)
		return
	}
	if err := c.store.Set(ctx, listCacheKey, string(data), c.ttl); err != nil {
		slog.Warn("catalog cache save failed", "error", err)
	}
}

func (c *listCache) invalidate(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if err := c.store.Del(ctx, listCacheKey); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		slog.Warn("catalog cache invalidate failed", "error", err)
	}
}
