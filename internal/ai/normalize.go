package ai

import (
	"context"
	"fmt"
	"math"
)

// Normalize scales vec to unit L2 length in place and returns it. Normalized
// vectors let cosine similarity reduce to a dot product on the search side.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// NewValidatedEmbedder wraps an embedder so every returned vector is checked
// against the configured dimension and L2-normalized. A dimension mismatch is
// a provider contract violation, never silently padded or truncated.
func NewValidatedEmbedder(next IEmbedder, dimension int) IEmbedder {
	return &validatedEmbedder{next: next, dimension: dimension}
}

type validatedEmbedder struct {
	next      IEmbedder
	dimension int
}

func (e *validatedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vec, err := e.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := e.check(vec); err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

func (e *validatedEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	vecs, err := e.next.EmbedBatch(ctx, texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(texts))
	}
	for i, vec := range vecs {
		if err := e.check(vec); err != nil {
			return nil, err
		}
		vecs[i] = Normalize(vec)
	}
	return vecs, nil
}

func (e *validatedEmbedder) ModelName() string {
	return e.next.ModelName()
}

func (e *validatedEmbedder) check(vec []float32) error {
	if len(vec) != e.dimension {
		return fmt.Errorf("embedding dimension mismatch: got %d want %d", len(vec), e.dimension)
	}
	return nil
}
