package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(10 * time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCache_GetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, hit, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "schemas:list:page-1", []byte(`{"items":[]}`), time.Minute))

	value, hit, err := c.Get(ctx, "schemas:list:page-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte(`{"items":[]}`), value)

	// Overwrites replace the stored value.
	require.NoError(t, c.Set(ctx, "schemas:list:page-1", []byte("v2"), time.Minute))
	value, hit, _ = c.Get(ctx, "schemas:list:page-1")
	assert.True(t, hit)
	assert.Equal(t, []byte("v2"), value)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("x"), 20*time.Millisecond))

	_, hit, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Eventually(t, func() bool {
		_, hit, _ := c.Get(ctx, "short")
		return !hit
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	require.NoError(t, c.Delete(ctx, "a", "never-existed"))

	_, hit, _ := c.Get(ctx, "a")
	assert.False(t, hit)
	_, hit, _ = c.Get(ctx, "b")
	assert.True(t, hit)
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	keys := map[string]string{
		"schemas:list:page-1": "a",
		"schemas:list:page-2": "b",
		"schemas:stats:42":    "c",
	}
	for key, value := range keys {
		require.NoError(t, c.Set(ctx, key, []byte(value), time.Minute))
	}

	require.NoError(t, c.DeleteByPattern(ctx, "schemas:list:*"))

	_, hit, _ := c.Get(ctx, "schemas:list:page-1")
	assert.False(t, hit)
	_, hit, _ = c.Get(ctx, "schemas:list:page-2")
	assert.False(t, hit)
	_, hit, _ = c.Get(ctx, "schemas:stats:42")
	assert.True(t, hit, "non-matching keys survive")
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
