package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junwei-liu/docgate/internal/core/filestore"
	"github.com/junwei-liu/docgate/internal/models"
)

func newCache(t *testing.T, ttl time.Duration) (*ChunkCache, *filestore.FileStore) {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	_, err = store.GetOrCreateSession(context.Background(), "u", "s")
	require.NoError(t, err)
	return New(store, ttl), store
}

func buildChunks(counter *atomic.Int64) func() ([]models.Chunk, error) {
	return func() ([]models.Chunk, error) {
		counter.Add(1)
		return []models.Chunk{{Index: 0, Text: "chunk zero", Size: 10}}, nil
	}
}

func TestGetOrBuildHitSkipsBuild(t *testing.T) {
	c, _ := newCache(t, time.Hour)
	ctx := context.Background()
	var builds atomic.Int64

	first, err := c.GetOrBuild(ctx, "u", "s", "h", "summarize", buildChunks(&builds))
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.EqualValues(t, 1, builds.Load())

	second, err := c.GetOrBuild(ctx, "u", "s", "h", "summarize", buildChunks(&builds))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, builds.Load(), "cache hit must not rebuild")
}

func TestGetOrBuildPerModeKeys(t *testing.T) {
	c, _ := newCache(t, time.Hour)
	ctx := context.Background()
	var builds atomic.Int64

	_, err := c.GetOrBuild(ctx, "u", "s", "h", "summarize", buildChunks(&builds))
	require.NoError(t, err)
	_, err = c.GetOrBuild(ctx, "u", "s", "h", "translate", buildChunks(&builds))
	require.NoError(t, err)
	assert.EqualValues(t, 2, builds.Load(), "modes chunk independently")
}

func TestGetOrBuildCoalescesConcurrentMisses(t *testing.T) {
	c, _ := newCache(t, time.Hour)
	ctx := context.Background()

	var builds atomic.Int64
	release := make(chan struct{})
	build := func() ([]models.Chunk, error) {
		builds.Add(1)
		<-release
		return []models.Chunk{{Index: 0, Text: "slow chunk", Size: 10}}, nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([][]models.Chunk, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrBuild(ctx, "u", "s", "h", "analyze", build)
		}(i)
	}

	time.Sleep(50 * time.Millisecond) // let the goroutines pile onto the key
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, builds.Load(), "concurrent misses must coalesce into one build")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}

func TestGetOrBuildExpiredEntryRebuilds(t *testing.T) {
	c, store := newCache(t, time.Hour)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	created := past.Add(-time.Hour)
	require.NoError(t, store.PutCache(ctx, &models.ProcessingCache{
		UserID: "u", SessionID: "s", DocumentHash: "h", Mode: "qa",
		Chunks:    []models.Chunk{{Index: 0, Text: "stale", Size: 5}},
		Result:    "stale answer",
		CreatedAt: created, UpdatedAt: created, ExpiresAt: past,
	}))

	var builds atomic.Int64
	chunks, err := c.GetOrBuild(ctx, "u", "s", "h", "qa", buildChunks(&builds))
	require.NoError(t, err)
	assert.EqualValues(t, 1, builds.Load())
	assert.Equal(t, "chunk zero", chunks[0].Text)

	// the stale result went with the stale chunks
	res, err := c.GetResult(ctx, "u", "s", "h", "qa")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c, store := newCache(t, 0)
	ctx := context.Background()
	var builds atomic.Int64

	_, err := c.GetOrBuild(ctx, "u", "s", "h", "summarize", buildChunks(&builds))
	require.NoError(t, err)
	_, err = c.GetOrBuild(ctx, "u", "s", "h", "summarize", buildChunks(&builds))
	require.NoError(t, err)
	assert.EqualValues(t, 1, builds.Load(), "disabled expiry must still cache")

	entry, err := store.GetCache(ctx, "u", "s", "h", "summarize")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.ExpiresAt.IsZero())

	require.NoError(t, c.PutResult(ctx, "u", "s", "h", "summarize", "kept", "test-model"))
	res, err := c.GetResult(ctx, "u", "s", "h", "summarize")
	require.NoError(t, err)
	assert.Equal(t, "kept", res)
}

func TestResultRoundTripKeepsChunks(t *testing.T) {
	c, _ := newCache(t, time.Hour)
	ctx := context.Background()
	var builds atomic.Int64

	_, err := c.GetOrBuild(ctx, "u", "s", "h", "summarize", buildChunks(&builds))
	require.NoError(t, err)

	require.NoError(t, c.PutResult(ctx, "u", "s", "h", "summarize", "the summary", "test-model"))

	res, err := c.GetResult(ctx, "u", "s", "h", "summarize")
	require.NoError(t, err)
	assert.Equal(t, "the summary", res)

	chunks, err := c.GetOrBuild(ctx, "u", "s", "h", "summarize", buildChunks(&builds))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.EqualValues(t, 1, builds.Load(), "storing a result must not evict the chunks")
}
