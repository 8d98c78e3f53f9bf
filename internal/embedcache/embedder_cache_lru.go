package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragkb/internal/ai"
	"github.com/xxxsen/ragkb/internal/metrics"
)

// WrapLruCacheToEmbedder puts an in-memory TTL cache in front of an embedder.
// Stacked above the database cache it absorbs repeated query embeddings
// without a round-trip.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration, m *metrics.Metrics) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:    e,
		cache:   expirable.NewLRU[string, []float32](size, nil, ttl),
		metrics: m,
	}
}

type lruEmbedder struct {
	next    ai.IEmbedder
	cache   *expirable.LRU[string, []float32]
	metrics *metrics.Metrics
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	cacheKey, _, _ := buildCacheKey(l.next.ModelName(), taskType, text)
	if cached, ok := l.cache.Get(cacheKey); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", taskType))
		observe(l.metrics, "hit_memory")
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	l.cache.Add(cacheKey, cloneEmbedding(res))
	return res, nil
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		cacheKey, _, _ := buildCacheKey(l.next.ModelName(), taskType, text)
		if cached, ok := l.cache.Get(cacheKey); ok {
			observe(l.metrics, "hit_memory")
			results[i] = cloneEmbedding(cached)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return results, nil
	}
	pending := make([]string, 0, len(missing))
	for _, idx := range missing {
		pending = append(pending, texts[idx])
	}
	embedded, err := l.next.EmbedBatch(ctx, pending, taskType)
	if err != nil {
		return nil, err
	}
	for i, idx := range missing {
		cacheKey, _, _ := buildCacheKey(l.next.ModelName(), taskType, texts[idx])
		l.cache.Add(cacheKey, cloneEmbedding(embedded[i]))
		results[idx] = embedded[i]
	}
	return results, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}

func observe(m *metrics.Metrics, result string) {
	if m == nil {
		return
	}
	m.EmbeddingCacheTotal.WithLabelValues(result).Inc()
}
