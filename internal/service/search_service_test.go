package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragkb/internal/config"
	"github.com/xxxsen/ragkb/internal/model"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
)

func scored(id string, score float64) model.ScoredChunk {
	return model.ScoredChunk{
		Chunk: model.Chunk{ID: id, DocumentID: "doc-" + id, Content: "content " + id},
		Score: score,
	}
}

func ids(chunks []model.ScoredChunk) []string {
	out := make([]string, 0, len(chunks))
	for _, sc := range chunks {
		out = append(out, sc.ID)
	}
	return out
}

func TestFuseRankingsRewardsAgreement(t *testing.T) {
	// A leads the vector ranking and also appears high in the lexical one;
	// C only wins the lexical path. Agreement across paths outranks a single
	// strong path.
	vector := []model.ScoredChunk{scored("A", 0.91), scored("B", 0.85), scored("C", 0.70)}
	lexical := []model.ScoredChunk{scored("C", 12.0), scored("A", 9.5)}

	fused := fuseRankings(60, 10, vector, lexical)
	require.Equal(t, []string{"A", "C", "B"}, ids(fused))

	// RRF scores. A: 1/61 + 1/62, C: 1/63 + 1/61, B: 1/62.
	require.InDelta(t, 1.0/61+1.0/62, fused[0].Score, 1e-12)
	require.InDelta(t, 1.0/63+1.0/61, fused[1].Score, 1e-12)
	require.InDelta(t, 1.0/62, fused[2].Score, 1e-12)
}

func TestFuseRankingsOrderIndependent(t *testing.T) {
	vector := []model.ScoredChunk{scored("A", 0.9), scored("B", 0.8), scored("D", 0.7)}
	lexical := []model.ScoredChunk{scored("B", 3.0), scored("C", 2.0), scored("A", 1.0)}

	first := fuseRankings(60, 10, vector, lexical)
	second := fuseRankings(60, 10, lexical, vector)
	require.Equal(t, ids(first), ids(second))
	for i := range first {
		require.InDelta(t, first[i].Score, second[i].Score, 1e-12)
	}
}

func TestFuseRankingsTieBreaksOnChunkID(t *testing.T) {
	// Same rank in disjoint lists -> identical scores; chunk ID decides.
	vector := []model.ScoredChunk{scored("zeta", 1.0)}
	lexical := []model.ScoredChunk{scored("alpha", 1.0)}

	fused := fuseRankings(60, 10, vector, lexical)
	require.Equal(t, []string{"alpha", "zeta"}, ids(fused))
}

func TestFuseRankingsTruncatesToTopK(t *testing.T) {
	vector := []model.ScoredChunk{scored("A", 3), scored("B", 2), scored("C", 1)}
	fused := fuseRankings(60, 2, vector, nil)
	require.Equal(t, []string{"A", "B"}, ids(fused))
}

func TestClampTopK(t *testing.T) {
	s := &SearchService{}
	s.cfg.DefaultTopK = 5
	s.cfg.MaxTopK = 50
	require.Equal(t, 5, s.clampTopK(0))
	require.Equal(t, 5, s.clampTopK(-3))
	require.Equal(t, 7, s.clampTopK(7))
	require.Equal(t, 50, s.clampTopK(500))
}

type fixedQueryEmbedder struct {
	err error
}

func (f *fixedQueryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *fixedQueryEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fixedQueryEmbedder) ModelName() string { return "fixed-query" }

type fakeKBGetter struct{}

func (f *fakeKBGetter) GetByID(ctx context.Context, tenantID, kbID string) (*model.KnowledgeBase, error) {
	return &model.KnowledgeBase{ID: kbID, TenantID: tenantID}, nil
}

type fakeChunkSearcher struct {
	vector []model.ScoredChunk
	vecErr error
	lex    []model.ScoredChunk
	lexErr error
}

func (f *fakeChunkSearcher) VectorSearch(ctx context.Context, tenantID, kbID string, embedding []float32, limit int) ([]model.ScoredChunk, error) {
	return f.vector, f.vecErr
}

func (f *fakeChunkSearcher) LexicalSearch(ctx context.Context, tenantID, kbID, queryText string, limit int) ([]model.ScoredChunk, error) {
	return f.lex, f.lexErr
}

func newHybridService(searcher *fakeChunkSearcher) *SearchService {
	cfg := config.RetrievalConfig{RRFK: 60, Oversample: 4, DefaultTopK: 5, MaxTopK: 50, PathTimeout: 5}
	return NewSearchService(cfg, &fakeKBGetter{}, searcher, &fixedQueryEmbedder{}, nil)
}

func hybridRequest(topK int) *SearchRequest {
	return &SearchRequest{KBID: "kb-1", Query: "Q3 earnings growth", Mode: model.SearchModeHybrid, TopK: topK}
}

func TestHybridSearchFusesBothPaths(t *testing.T) {
	// A ranks on both paths, B only semantically, C only lexically. The
	// chunk both paths agree on must come out on top.
	searcher := &fakeChunkSearcher{
		vector: []model.ScoredChunk{scored("A", 0.89), scored("B", 0.83), scored("C", 0.41)},
		lex:    []model.ScoredChunk{scored("C", 11.2), scored("A", 8.7)},
	}

	result, err := newHybridService(searcher).Search(context.Background(), "tenant-1", hybridRequest(3))
	require.NoError(t, err)
	require.False(t, result.Degraded)
	require.Equal(t, []string{"A", "C", "B"}, ids(result.Chunks))
}

func TestHybridSearchDegradesWhenVectorPathFails(t *testing.T) {
	searcher := &fakeChunkSearcher{
		vecErr: errors.New("index offline"),
		lex:    []model.ScoredChunk{scored("C", 11.2), scored("A", 8.7), scored("B", 2.0)},
	}

	result, err := newHybridService(searcher).Search(context.Background(), "tenant-1", hybridRequest(2))
	require.NoError(t, err)
	require.True(t, result.Degraded)
	// Surviving path's own ranking, truncated to topK.
	require.Equal(t, []string{"C", "A"}, ids(result.Chunks))
}

func TestHybridSearchDegradesWhenLexicalPathFails(t *testing.T) {
	searcher := &fakeChunkSearcher{
		vector: []model.ScoredChunk{scored("A", 0.89), scored("B", 0.83)},
		lexErr: errors.New("tsquery rejected"),
	}

	result, err := newHybridService(searcher).Search(context.Background(), "tenant-1", hybridRequest(5))
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.Equal(t, []string{"A", "B"}, ids(result.Chunks))
}

func TestHybridSearchFailsWhenBothPathsFail(t *testing.T) {
	searcher := &fakeChunkSearcher{
		vecErr: errors.New("index offline"),
		lexErr: errors.New("tsquery rejected"),
	}

	_, err := newHybridService(searcher).Search(context.Background(), "tenant-1", hybridRequest(5))
	require.ErrorIs(t, err, appErr.ErrSearchUnavailable)
	require.True(t, appErr.IsRetryable(err))
}
