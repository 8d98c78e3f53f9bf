package ai

import (
	"context"
	"time"
)

// NewTimeoutGenerator bounds every generation call with its own deadline so
// one hung provider cannot consume the whole request budget.
func NewTimeoutGenerator(inner IGenerator, timeout time.Duration) IGenerator {
	if timeout <= 0 {
		return inner
	}
	return &timeoutGenerator{inner: inner, timeout: timeout}
}

type timeoutGenerator struct {
	inner   IGenerator
	timeout time.Duration
}

func (g *timeoutGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.inner.Generate(ctx, prompt)
}

// NewTimeoutEmbedder bounds every embedding call with its own deadline.
func NewTimeoutEmbedder(inner IEmbedder, timeout time.Duration) IEmbedder {
	if timeout <= 0 {
		return inner
	}
	return &timeoutEmbedder{inner: inner, timeout: timeout}
}

type timeoutEmbedder struct {
	inner   IEmbedder
	timeout time.Duration
}

func (e *timeoutEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.inner.Embed(ctx, text, taskType)
}

func (e *timeoutEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.inner.EmbedBatch(ctx, texts, taskType)
}

func (e *timeoutEmbedder) ModelName() string {
	return e.inner.ModelName()
}
