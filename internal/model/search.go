package model

import "fmt"

type SearchMode string

const (
	SearchModeVector   SearchMode = "vector"
	SearchModeFullText SearchMode = "full_text"
	SearchModeHybrid   SearchMode = "hybrid"
)

// ParseSearchMode validates a caller-supplied mode string. An empty value
// selects hybrid, the default.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case "":
		return SearchModeHybrid, nil
	case SearchModeVector, SearchModeFullText, SearchModeHybrid:
		return SearchMode(s), nil
	}
	return "", fmt.Errorf("unsupported search mode: %s", s)
}

// RAGSource is a chunk that made it into the generator's context window,
// listed on the answer in the order it was used.
type RAGSource struct {
	DocumentID string                 `json:"document_id"`
	ChunkID    string                 `json:"chunk_id"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type EmbeddingCache struct {
	ModelName   string
	TaskType    string
	ContentHash string
	Embedding   []float32
	Ctime       int64
}
