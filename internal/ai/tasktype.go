package ai

// Embedding task types. Providers that distinguish document and query
// embeddings (gemini) read these; the rest ignore them.
const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)
