package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/pkg/logger"
	"github.com/reqanswer/backend/pkg/utils"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type batchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache stores embeddings by key. A miss is (nil, false, nil).
type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32) error
}

// Cached puts a cache in front of an embedder. Cache failures are logged and
// fall through to the embedder.
type Cached struct {
	inner Embedder
	cache Cache
	model string
}

func NewCached(inner Embedder, cache Cache, model string) *Cached {
	return &Cached{inner: inner, cache: cache, model: model}
}

func (c *Cached) key(text string) string {
	return utils.CacheKey("embedding", c.model, text)
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if v, ok := c.lookup(ctx, key); ok {
		return v, nil
	}

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, v)
	return v, nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, t := range texts {
		if v, ok := c.lookup(ctx, c.key(t)); ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}

	var vecs [][]float32
	if be, ok := c.inner.(batchEmbedder); ok {
		var err error
		if vecs, err = be.EmbedBatch(ctx, pending); err != nil {
			return nil, err
		}
	} else {
		for _, t := range pending {
			v, err := c.inner.Embed(ctx, t)
			if err != nil {
				return nil, err
			}
			vecs = append(vecs, v)
		}
	}

	for j, i := range missing {
		if j >= len(vecs) {
			break
		}
		out[i] = vecs[j]
		c.store(ctx, c.key(texts[i]), vecs[j])
	}
	return out, nil
}

func (c *Cached) lookup(ctx context.Context, key string) ([]float32, bool) {
	v, ok, err := c.cache.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("embedding").Inc()
	return v, true
}

func (c *Cached) store(ctx context.Context, key string, v []float32) {
	if err := c.cache.SetEmbedding(ctx, key, v); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}
