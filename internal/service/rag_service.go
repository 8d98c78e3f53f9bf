package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragkb/internal/ai"
	"github.com/xxxsen/ragkb/internal/chunker"
	"github.com/xxxsen/ragkb/internal/config"
	"github.com/xxxsen/ragkb/internal/metrics"
	"github.com/xxxsen/ragkb/internal/model"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
)

type RAGRequest struct {
	KBID      string
	Query     string
	Mode      model.SearchMode
	TopK      int
	MaxTokens int
	UseRerank bool
}

type RAGAnswer struct {
	Answer    string            `json:"answer"`
	Sources   []model.RAGSource `json:"sources"`
	LatencyMS int64             `json:"latency_ms"`
	Degraded  bool              `json:"degraded"`
	Reranked  bool              `json:"reranked"`
}

type RAGService struct {
	cfg       config.RetrievalConfig
	search    *SearchService
	reranker  ai.IReranker
	generator ai.IGenerator
	metrics   *metrics.Metrics
}

func NewRAGService(cfg config.RetrievalConfig, search *SearchService, reranker ai.IReranker,
	generator ai.IGenerator, m *metrics.Metrics) *RAGService {
	return &RAGService{cfg: cfg, search: search, reranker: reranker, generator: generator, metrics: m}
}

// Answer retrieves ranked chunks, optionally reranks them, assembles a
// context window within the token budget and asks the generator. Sources
// list exactly the chunks that made it into the window, in order of use.
func (s *RAGService) Answer(ctx context.Context, tenantID string, req *RAGRequest) (*RAGAnswer, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.QueryTimeout)*time.Second)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.MaxTokens
	}
	budget := maxTokens - s.cfg.PromptOverhead - chunker.EstimateTokens(req.Query)
	if budget <= 0 {
		return nil, appErr.ErrInvalid
	}

	result, err := s.search.Search(ctx, tenantID, &SearchRequest{
		KBID:  req.KBID,
		Query: req.Query,
		Mode:  req.Mode,
		TopK:  req.TopK,
	})
	if err != nil {
		s.observe(metrics.OutcomeError)
		return nil, err
	}

	candidates := result.Chunks
	reranked := false
	if req.UseRerank {
		candidates, reranked = s.rerank(ctx, req.Query, candidates)
	}

	selected := assembleContext(candidates, budget)
	answer, err := s.generator.Generate(ctx, buildPrompt(req.Query, selected))
	if err != nil {
		s.observe(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %v", appErr.ErrGenerate, err)
	}

	sources := make([]model.RAGSource, 0, len(selected))
	for _, sc := range selected {
		sources = append(sources, model.RAGSource{
			DocumentID: sc.DocumentID,
			ChunkID:    sc.ID,
			Content:    sc.Content,
			Metadata:   sc.Metadata,
		})
	}
	s.observe(metrics.OutcomeOK)
	return &RAGAnswer{
		Answer:    answer,
		Sources:   sources,
		LatencyMS: time.Since(start).Milliseconds(),
		Degraded:  result.Degraded,
		Reranked:  reranked,
	}, nil
}

// rerank reorders candidates by cross-encoder score. A reranker failure is
// never fatal: the fused ordering is served and the response says so.
func (s *RAGService) rerank(ctx context.Context, query string, candidates []model.ScoredChunk) ([]model.ScoredChunk, bool) {
	if s.reranker == nil || len(candidates) == 0 {
		return candidates, false
	}
	documents := make([]string, 0, len(candidates))
	for _, sc := range candidates {
		documents = append(documents, sc.Content)
	}
	scores, err := s.reranker.Rerank(ctx, query, documents)
	if err != nil {
		logutil.GetLogger(ctx).Warn("rerank failed, serving fused ranking", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RerankFallbacksTotal.Inc()
		}
		return candidates, false
	}
	if len(scores) != len(candidates) {
		logutil.GetLogger(ctx).Warn("rerank returned wrong score count, serving fused ranking",
			zap.Int("want", len(candidates)), zap.Int("got", len(scores)))
		if s.metrics != nil {
			s.metrics.RerankFallbacksTotal.Inc()
		}
		return candidates, false
	}
	reordered := make([]model.ScoredChunk, len(candidates))
	copy(reordered, candidates)
	for i := range reordered {
		reordered[i].Score = scores[i]
	}
	sort.SliceStable(reordered, func(i, j int) bool {
		if reordered[i].Score != reordered[j].Score {
			return reordered[i].Score > reordered[j].Score
		}
		return reordered[i].ID < reordered[j].ID
	})
	return reordered, true
}

// assembleContext picks whole chunks in rank order until the next one would
// blow the token budget. Chunks are never cut mid-text.
func assembleContext(candidates []model.ScoredChunk, budget int) []model.ScoredChunk {
	selected := make([]model.ScoredChunk, 0, len(candidates))
	used := 0
	for _, sc := range candidates {
		cost := chunker.EstimateTokens(sc.Content)
		if used+cost > budget {
			break
		}
		selected = append(selected, sc)
		used += cost
	}
	return selected
}

func buildPrompt(query string, selected []model.ScoredChunk) string {
	var b strings.Builder
	if len(selected) == 0 {
		b.WriteString("No context is available for this question.\n\n")
	} else {
		b.WriteString("Answer the question using only the context below.\n\nContext:\n")
		for i, sc := range selected {
			fmt.Fprintf(&b, "[%d] %s\n\n", i+1, sc.Content)
		}
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

func (s *RAGService) observe(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RAGRequestsTotal.WithLabelValues(outcome).Inc()
}
