package embedcache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragbase/internal/ai"
	"github.com/xxxsen/ragbase/internal/embedcache"
)

type countingEmbedder struct {
	calls int
	texts []string
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	e.calls++
	e.texts = append(e.texts, texts...)
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, []float32{float32(len(text)), 1})
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int    { return 2 }
func (e *countingEmbedder) ModelName() string { return "counting" }

func TestCacheHitSkipsProvider(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	cached := embedcache.WrapLruCacheToEmbedder(inner, 16, time.Minute)

	first, err := cached.Embed(ctx, []string{"alpha", "beta"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	second, err := cached.Embed(ctx, []string{"alpha", "beta"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.Equal(t, first, second)
}

func TestCachePartialMiss(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	cached := embedcache.WrapLruCacheToEmbedder(inner, 16, time.Minute)

	_, err := cached.Embed(ctx, []string{"alpha"}, ai.TaskTypeDocument)
	require.NoError(t, err)

	vectors, err := cached.Embed(ctx, []string{"alpha", "gamma"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Equal(t, []float32{5, 1}, vectors[0])
	require.Equal(t, []float32{5, 1}, vectors[1])
	// Only the miss goes upstream.
	require.Equal(t, []string{"alpha", "gamma"}, inner.texts)
}

func TestCacheKeyedByTaskType(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	cached := embedcache.WrapLruCacheToEmbedder(inner, 16, time.Minute)

	_, err := cached.Embed(ctx, []string{"alpha"}, ai.TaskTypeDocument)
	require.NoError(t, err)
	_, err = cached.Embed(ctx, []string{"alpha"}, ai.TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCacheDisabledPassthrough(t *testing.T) {
	inner := &countingEmbedder{}
	require.Equal(t, ai.IEmbedder(inner), embedcache.WrapLruCacheToEmbedder(inner, 0, time.Minute))
	require.Equal(t, ai.IEmbedder(inner), embedcache.WrapLruCacheToEmbedder(inner, 16, 0))
}
