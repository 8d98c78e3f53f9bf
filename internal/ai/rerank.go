package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// IReranker scores (query, document) pairs with a cross-encoder model and
// returns one score per document in input order. Callers sort by score and
// fall back to their prior ordering when the reranker is unavailable.
type IReranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
	ModelName() string
}

type RerankerConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewHTTPReranker talks to a cohere/jina style rerank endpoint:
// POST {model, query, documents} -> {results: [{index, relevance_score}]}.
// An empty endpoint yields a reranker that always reports ErrUnavailable so
// callers exercise their fallback path.
func NewHTTPReranker(cfg RerankerConfig) IReranker {
	return &httpReranker{cfg: cfg}
}

type httpReranker struct {
	cfg RerankerConfig
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *httpReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if r.cfg.Endpoint == "" {
		return nil, ErrUnavailable
	}
	if len(documents) == 0 {
		return nil, nil
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	data, err := json.Marshal(rerankRequest{
		Model:     r.cfg.Model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	scores := make([]float64, len(documents))
	seen := make([]bool, len(documents))
	for _, item := range out.Results {
		if item.Index < 0 || item.Index >= len(scores) {
			return nil, fmt.Errorf("rerank result index %d out of range", item.Index)
		}
		scores[item.Index] = item.RelevanceScore
		seen[item.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank result missing for document %d", i)
		}
	}
	return scores, nil
}

func (r *httpReranker) ModelName() string {
	return r.cfg.Model
}
