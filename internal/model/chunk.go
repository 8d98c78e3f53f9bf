package model

// Chunk rows are written once per document as an atomic batch and are
// immutable afterwards. Tenant and KB identifiers are denormalized so a
// single filtered query covers isolation without joins.
type Chunk struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"-"`
	KBID       string                 `json:"kb_id"`
	DocumentID string                 `json:"document_id"`
	Position   int                    `json:"position"`
	Content    string                 `json:"content"`
	Embedding  []float32              `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Ctime      int64                  `json:"ctime"`
}

// ScoredChunk is a chunk with the score assigned by whichever ranking stage
// produced it (cosine similarity, lexical rank, fused RRF or rerank score).
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}
