package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragkb/internal/ai"
	"github.com/xxxsen/ragkb/internal/config"
	"github.com/xxxsen/ragkb/internal/metrics"
	"github.com/xxxsen/ragkb/internal/model"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
)

type SearchRequest struct {
	KBID  string
	Query string
	Mode  model.SearchMode
	TopK  int
}

type SearchResult struct {
	Chunks []model.ScoredChunk
	Mode   model.SearchMode
	// Degraded is set when a hybrid search lost one retrieval path and served
	// the surviving path's ranking instead of a fused one.
	Degraded bool
}

// ChunkSearcher is the slice of the chunk repository the search service
// needs; *repo.ChunkRepo satisfies it.
type ChunkSearcher interface {
	VectorSearch(ctx context.Context, tenantID, kbID string, embedding []float32, limit int) ([]model.ScoredChunk, error)
	LexicalSearch(ctx context.Context, tenantID, kbID, queryText string, limit int) ([]model.ScoredChunk, error)
}

// KnowledgeBaseGetter resolves tenant-scoped knowledge bases;
// *repo.KnowledgeBaseRepo satisfies it.
type KnowledgeBaseGetter interface {
	GetByID(ctx context.Context, tenantID, kbID string) (*model.KnowledgeBase, error)
}

type SearchService struct {
	cfg      config.RetrievalConfig
	kbs      KnowledgeBaseGetter
	chunks   ChunkSearcher
	embedder ai.IEmbedder
	metrics  *metrics.Metrics
}

func NewSearchService(cfg config.RetrievalConfig, kbs KnowledgeBaseGetter, chunks ChunkSearcher,
	embedder ai.IEmbedder, m *metrics.Metrics) *SearchService {
	return &SearchService{cfg: cfg, kbs: kbs, chunks: chunks, embedder: embedder, metrics: m}
}

// Search runs the requested retrieval mode over one knowledge base. Hybrid
// mode runs both paths concurrently and fuses their rankings; losing a single
// path degrades the result instead of failing it.
func (s *SearchService) Search(ctx context.Context, tenantID string, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, appErr.ErrInvalid
	}
	topK := s.clampTopK(req.TopK)
	if _, err := s.kbs.GetByID(ctx, tenantID, req.KBID); err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := s.search(ctx, tenantID, req, topK)
	s.observeSearch(req.Mode, err, start)
	return result, err
}

func (s *SearchService) search(ctx context.Context, tenantID string, req *SearchRequest, topK int) (*SearchResult, error) {
	switch req.Mode {
	case model.SearchModeVector:
		chunks, err := s.vectorSearch(ctx, tenantID, req.KBID, req.Query, topK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrSearchUnavailable, err)
		}
		return &SearchResult{Chunks: chunks, Mode: req.Mode}, nil
	case model.SearchModeFullText:
		chunks, err := s.chunks.LexicalSearch(ctx, tenantID, req.KBID, req.Query, topK)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrSearchUnavailable, err)
		}
		return &SearchResult{Chunks: chunks, Mode: req.Mode}, nil
	case model.SearchModeHybrid:
		return s.hybridSearch(ctx, tenantID, req.KBID, req.Query, topK)
	}
	return nil, appErr.ErrInvalid
}

func (s *SearchService) hybridSearch(ctx context.Context, tenantID, kbID, query string, topK int) (*SearchResult, error) {
	// Each path retrieves more than topK so fusion has enough overlap to
	// reorder; topK*oversample candidates per path.
	limit := topK * s.cfg.Oversample
	var (
		wg         sync.WaitGroup
		vecChunks  []model.ScoredChunk
		vecErr     error
		lexChunks  []model.ScoredChunk
		lexErr     error
		pathBudget = time.Duration(s.cfg.PathTimeout) * time.Second
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pathCtx, cancel := context.WithTimeout(ctx, pathBudget)
		defer cancel()
		vecChunks, vecErr = s.vectorSearch(pathCtx, tenantID, kbID, query, limit)
	}()
	go func() {
		defer wg.Done()
		pathCtx, cancel := context.WithTimeout(ctx, pathBudget)
		defer cancel()
		lexChunks, lexErr = s.chunks.LexicalSearch(pathCtx, tenantID, kbID, query, limit)
	}()
	wg.Wait()

	logger := logutil.GetLogger(ctx)
	if vecErr != nil && lexErr != nil {
		return nil, fmt.Errorf("%w: vector: %v; lexical: %v", appErr.ErrSearchUnavailable, vecErr, lexErr)
	}
	if vecErr != nil {
		logger.Warn("vector path failed, serving lexical ranking", zap.Error(vecErr))
		s.observePathFailure(metrics.PathVector)
		return &SearchResult{Chunks: truncate(lexChunks, topK), Mode: model.SearchModeHybrid, Degraded: true}, nil
	}
	if lexErr != nil {
		logger.Warn("lexical path failed, serving vector ranking", zap.Error(lexErr))
		s.observePathFailure(metrics.PathLexical)
		return &SearchResult{Chunks: truncate(vecChunks, topK), Mode: model.SearchModeHybrid, Degraded: true}, nil
	}
	fused := fuseRankings(s.cfg.RRFK, topK, vecChunks, lexChunks)
	return &SearchResult{Chunks: fused, Mode: model.SearchModeHybrid}, nil
}

func (s *SearchService) vectorSearch(ctx context.Context, tenantID, kbID, query string, limit int) ([]model.ScoredChunk, error) {
	embedding, err := s.embedder.Embed(ctx, query, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEmbedding, err)
	}
	return s.chunks.VectorSearch(ctx, tenantID, kbID, embedding, limit)
}

// fuseRankings merges path rankings with reciprocal rank fusion: each chunk
// scores sum(1 / (k + rank)) over the lists it appears in, rank 1-based.
// Ties break on chunk ID so a query always produces the same ordering no
// matter which path delivered first.
func fuseRankings(k int, topK int, rankings ...[]model.ScoredChunk) []model.ScoredChunk {
	type fusedEntry struct {
		chunk model.Chunk
		score float64
	}
	entries := make(map[string]*fusedEntry)
	for _, ranking := range rankings {
		for i, sc := range ranking {
			contribution := 1.0 / float64(k+i+1)
			if entry, ok := entries[sc.ID]; ok {
				entry.score += contribution
				continue
			}
			entries[sc.ID] = &fusedEntry{chunk: sc.Chunk, score: contribution}
		}
	}
	fused := make([]model.ScoredChunk, 0, len(entries))
	for _, entry := range entries {
		fused = append(fused, model.ScoredChunk{Chunk: entry.chunk, Score: entry.score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ID < fused[j].ID
	})
	return truncate(fused, topK)
}

func truncate(chunks []model.ScoredChunk, topK int) []model.ScoredChunk {
	if len(chunks) > topK {
		return chunks[:topK]
	}
	return chunks
}

func (s *SearchService) clampTopK(topK int) int {
	if topK <= 0 {
		return s.cfg.DefaultTopK
	}
	if topK > s.cfg.MaxTopK {
		return s.cfg.MaxTopK
	}
	return topK
}

func (s *SearchService) observeSearch(mode model.SearchMode, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	s.metrics.SearchRequestsTotal.WithLabelValues(string(mode), outcome).Inc()
	s.metrics.SearchDurationSeconds.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
}

func (s *SearchService) observePathFailure(path string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchPathFailuresTotal.WithLabelValues(path).Inc()
}
