package cache

import (
	"context"
	"testing"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/normalization"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSetEvict(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(2)
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", "uno"))
	require.NoError(t, c.Set(ctx, "b", "dos"))
	_, ok, _ = c.Get(ctx, "a") // a becomes the most recent
	assert.True(t, ok)
	require.NoError(t, c.Set(ctx, "c", "tres"))

	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry is evicted")
	value, ok, _ := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "uno", value)

	removed, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Zero(t, c.Len())
}

func TestMemoryCache_DefaultSize(t *testing.T) {
	c, err := NewMemoryCache(0)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "k", "v"))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_BacksNormalizationEngine(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryCache(16)
	require.NoError(t, err)

	engine := normalization.NewEngine(
		normalization.Compile(normalization.DefaultConfig().Handlers),
		normalization.WithCache(c),
		normalization.WithLogger(logger.Discard()),
	)

	first, err := engine.Normalize(ctx, corpus.FromList([]string{"HOLA re loco", "HOLA re loco"}), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hola muy loco", "hola muy loco"}, first.Records)
	assert.Equal(t, 1, c.Len())
}
