package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragbase/internal/ai"
)

// WrapLruCacheToEmbedder caches embeddings per input text so re-ingesting
// unchanged documents and repeated queries skip the provider entirely.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		key := buildCacheKey(l.next.ModelName(), taskType, text)
		if cached, ok := l.cache.Get(key); ok {
			vectors[i] = cloneEmbedding(cached)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit for full batch", zap.Int("size", len(texts)))
		return vectors, nil
	}
	fresh, err := l.next.Embed(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		i := missIdx[j]
		vectors[i] = vec
		l.cache.Add(buildCacheKey(l.next.ModelName(), taskType, texts[i]), cloneEmbedding(vec))
	}
	return vectors, nil
}

func (l *lruEmbedder) Dimension() int {
	return l.next.Dimension()
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func buildCacheKey(modelName, taskType, text string) string {
	hash := sha256.Sum256([]byte(text))
	return modelName + ":" + taskType + ":" + hex.EncodeToString(hash[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
