package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubEmbeddingsDeterministic(t *testing.T) {
	provider, err := NewProvider("stub", map[string]interface{}{"dimension": 8})
	require.NoError(t, err)

	first, err := provider.Embed(context.Background(), "m", "hello world", TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, first, 8)

	second, err := provider.Embed(context.Background(), "m", "hello world", TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := provider.Embed(context.Background(), "m", "another text", TaskTypeDocument)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestStubEmbedBatchPreservesOrder(t *testing.T) {
	provider, err := NewProvider("stub", nil)
	require.NoError(t, err)

	texts := []string{"one", "two", "three"}
	vecs, err := provider.EmbedBatch(context.Background(), "m", texts, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, text := range texts {
		single, err := provider.Embed(context.Background(), "m", text, TaskTypeDocument)
		require.NoError(t, err)
		require.Equal(t, single, vecs[i])
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider("no-such-provider", nil)
	require.Error(t, err)
}
