package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// stubProvider is a deterministic offline provider for local development and
// tests: generation echoes a prefix of the prompt, embeddings are derived
// from token hashes so similar texts land near each other.
type stubConfig struct {
	Dimension int `json:"dimension"`
}

type stubProvider struct {
	dimension int
}

func (p *stubProvider) Name() string {
	return "stub"
}

func (p *stubProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	const limit = 500
	if len(prompt) > limit {
		prompt = prompt[:limit]
	}
	return fmt.Sprintf("[stubbed reply]\nPrompt was:\n%s", prompt), nil
}

func (p *stubProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, model, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *stubProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vecs = append(vecs, p.hashEmbed(text))
	}
	return vecs, nil
}

func (p *stubProvider) hashEmbed(text string) []float32 {
	dim := p.dimension
	vec := make([]float32, dim)
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%2000)/1000.0 - 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func createStubFactory(args interface{}) (IProvider, error) {
	cfg := &stubConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	return &stubProvider{dimension: cfg.Dimension}, nil
}

func init() {
	Register("stub", createStubFactory)
}
