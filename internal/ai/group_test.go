package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type flakyGenerator struct {
	err   error
	reply string
}

func (f *flakyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestGroupGeneratorFailsOver(t *testing.T) {
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "primary", Generator: &flakyGenerator{err: errors.New("quota exceeded")}},
		{Name: "backup", Generator: &flakyGenerator{reply: "from backup"}},
	})
	reply, err := g.Generate(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "from backup", reply)
}

func TestGroupGeneratorReturnsLastError(t *testing.T) {
	lastErr := errors.New("backup down too")
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "primary", Generator: &flakyGenerator{err: errors.New("primary down")}},
		{Name: "backup", Generator: &flakyGenerator{err: lastErr}},
	})
	_, err := g.Generate(context.Background(), "hi")
	require.ErrorIs(t, err, lastErr)
}

func TestGroupEmbedderFailsOver(t *testing.T) {
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "bad", Embedder: &failingEmbedder{}},
		{Name: "good", Embedder: &fixedEmbedder{vec: []float32{1, 0}}},
	})
	vec, err := g.Embed(context.Background(), "x", TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 0}, vec)
	require.Equal(t, "bad|good", g.ModelName())
}

type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return nil, errors.New("unreachable")
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	return nil, errors.New("unreachable")
}

func (f *failingEmbedder) ModelName() string { return "failing" }
