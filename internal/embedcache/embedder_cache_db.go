package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragkb/internal/ai"
	"github.com/xxxsen/ragkb/internal/metrics"
	"github.com/xxxsen/ragkb/internal/model"
	"github.com/xxxsen/ragkb/internal/repo"
)

// WrapDBCacheToEmbedder puts the durable embedding cache in front of an
// embedder. A cache write failure is logged and swallowed; the embedding
// itself is still returned.
func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo, m *metrics.Metrics) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo, metrics: m}
}

type dbEmbedder struct {
	next    ai.IEmbedder
	repo    *repo.EmbeddingCacheRepo
	metrics *metrics.Metrics
}

func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	_, contentHash, modelName := buildCacheKey(d.next.ModelName(), taskType, text)
	values, ok, err := d.repo.Get(ctx, modelName, taskType, contentHash)
	if err != nil {
		return nil, err
	}
	if ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.String("task_type", taskType))
		observe(d.metrics, "hit_db")
		return values, nil
	}
	observe(d.metrics, "miss")
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	d.save(ctx, modelName, taskType, contentHash, res)
	return res, nil
}

func (d *dbEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), taskType, text)
		values, ok, err := d.repo.Get(ctx, modelName, taskType, contentHash)
		if err != nil {
			return nil, err
		}
		if ok {
			observe(d.metrics, "hit_db")
			results[i] = values
			continue
		}
		observe(d.metrics, "miss")
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return results, nil
	}
	pending := make([]string, 0, len(missing))
	for _, idx := range missing {
		pending = append(pending, texts[idx])
	}
	embedded, err := d.next.EmbedBatch(ctx, pending, taskType)
	if err != nil {
		return nil, err
	}
	for i, idx := range missing {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), taskType, texts[idx])
		d.save(ctx, modelName, taskType, contentHash, embedded[i])
		results[idx] = embedded[i]
	}
	return results, nil
}

func (d *dbEmbedder) save(ctx context.Context, modelName, taskType, contentHash string, values []float32) {
	if err := d.repo.Save(ctx, &model.EmbeddingCache{
		ModelName:   modelName,
		TaskType:    taskType,
		ContentHash: contentHash,
		Embedding:   values,
		Ctime:       time.Now().Unix(),
	}); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
	}
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
