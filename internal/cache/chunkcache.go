// Package cache provides the per-session chunk and result cache that sits
// between the orchestrator and the store.
package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/junwei-liu/docgate/internal/core"
	"github.com/junwei-liu/docgate/internal/models"
)

// ChunkCache memoizes mode-specific chunk sequences keyed by
// (user, session, document hash, mode). Concurrent misses for the same key
// coalesce into a single build; later callers share the first result.
type ChunkCache struct {
	store core.Store
	ttl   time.Duration
	group singleflight.Group
}

func New(store core.Store, ttl time.Duration) *ChunkCache {
	return &ChunkCache{store: store, ttl: ttl}
}

// expiry maps a non-positive ttl to the zero time, which the store treats
// as "never expires".
func (c *ChunkCache) expiry(now time.Time) time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(c.ttl)
}

// GetOrBuild returns the cached chunk sequence for the key, invoking build
// at most once per cache miss regardless of how many goroutines ask
// concurrently. A cached entry that has expired is rebuilt in place; the
// mode result stored alongside it is dropped because it described the old
// chunking.
func (c *ChunkCache) GetOrBuild(ctx context.Context, userID, sessionID, docHash, mode string, build func() ([]models.Chunk, error)) ([]models.Chunk, error) {
	entry, err := c.store.GetCache(ctx, userID, sessionID, docHash, mode)
	if err != nil {
		return nil, err
	}
	if fresh(entry) {
		return entry.Chunks, nil
	}

	key := userID + "/" + sessionID + "/" + docHash + ":" + mode
	v, err, _ := c.group.Do(key, func() (any, error) {
		// another caller may have filled the entry while we queued
		entry, err := c.store.GetCache(ctx, userID, sessionID, docHash, mode)
		if err != nil {
			return nil, err
		}
		if fresh(entry) {
			return entry.Chunks, nil
		}

		chunks, err := build()
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		if err := c.store.PutCache(ctx, &models.ProcessingCache{
			UserID:       userID,
			SessionID:    sessionID,
			DocumentHash: docHash,
			Mode:         mode,
			Chunks:       chunks,
			CreatedAt:    now,
			UpdatedAt:    now,
			ExpiresAt:    c.expiry(now),
		}); err != nil {
			return nil, err
		}
		return chunks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Chunk), nil
}

// GetResult returns a previously stored mode result, or "" when none is
// cached or the entry has expired.
func (c *ChunkCache) GetResult(ctx context.Context, userID, sessionID, docHash, mode string) (string, error) {
	entry, err := c.store.GetCache(ctx, userID, sessionID, docHash, mode)
	if err != nil {
		return "", err
	}
	if !fresh(entry) || entry.Result == "" {
		return "", nil
	}
	return entry.Result, nil
}

// PutResult attaches the completed mode result to the cache entry, keeping
// the chunk sequence that produced it.
func (c *ChunkCache) PutResult(ctx context.Context, userID, sessionID, docHash, mode, result, model string) error {
	entry, err := c.store.GetCache(ctx, userID, sessionID, docHash, mode)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if entry == nil {
		entry = &models.ProcessingCache{
			UserID:       userID,
			SessionID:    sessionID,
			DocumentHash: docHash,
			Mode:         mode,
			CreatedAt:    now,
			ExpiresAt:    c.expiry(now),
		}
	}
	entry.Result = result
	entry.Model = model
	entry.UpdatedAt = now
	return c.store.PutCache(ctx, entry)
}

func fresh(entry *models.ProcessingCache) bool {
	return entry != nil && len(entry.Chunks) > 0 && !entry.Expired(time.Now().UTC())
}
