package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragkb/internal/config"
)

func stubProviderConfig(model string) config.ProviderConfig {
	return config.ProviderConfig{
		Provider: "stub",
		Model:    model,
		Data:     map[string]interface{}{"dimension": 8},
	}
}

func TestBuildEmbedderSingleProvider(t *testing.T) {
	embedder, err := BuildEmbedder(stubProviderConfig("stub-embed"), time.Second)
	require.NoError(t, err)
	require.Equal(t, "stub-embed", embedder.ModelName())

	vec, err := embedder.Embed(context.Background(), "hello", TaskTypeQuery)
	require.NoError(t, err)
	require.Len(t, vec, 8)
}

func TestBuildEmbedderWithFallbackFormsGroup(t *testing.T) {
	cfg := stubProviderConfig("primary")
	cfg.Fallbacks = []config.ProviderConfig{stubProviderConfig("backup")}

	embedder, err := BuildEmbedder(cfg, time.Second)
	require.NoError(t, err)
	require.Equal(t, "stub/primary|stub/backup", embedder.ModelName())

	vec, err := embedder.Embed(context.Background(), "hello", TaskTypeQuery)
	require.NoError(t, err)
	require.Len(t, vec, 8)
}

func TestBuildGeneratorRejectsUnknownProvider(t *testing.T) {
	cfg := stubProviderConfig("primary")
	cfg.Fallbacks = []config.ProviderConfig{{Provider: "no-such-provider"}}

	_, err := BuildGenerator(cfg, time.Second)
	require.Error(t, err)
}

type slowEmbedder struct {
	dim int
}

func (s *slowEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowEmbedder) ModelName() string { return "slow" }

func TestTimeoutEmbedderCutsOffSlowCalls(t *testing.T) {
	embedder := NewTimeoutEmbedder(&slowEmbedder{dim: 8}, 20*time.Millisecond)

	start := time.Now()
	_, err := embedder.Embed(context.Background(), "hello", TaskTypeQuery)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestTimeoutEmbedderDisabledWhenZero(t *testing.T) {
	inner := &slowEmbedder{dim: 8}
	require.Equal(t, IEmbedder(inner), NewTimeoutEmbedder(inner, 0))
}
