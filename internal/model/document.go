package model

// Document lifecycle. Transitions are one-way; a terminal document is only
// revived by a re-ingestion request that reuses its idempotency key.
const (
	DocumentStatusUploaded   = "UPLOADED"
	DocumentStatusProcessing = "PROCESSING"
	DocumentStatusReady      = "READY"
	DocumentStatusFailed     = "FAILED"
)

type Document struct {
	ID             string                 `json:"id"`
	TenantID       string                 `json:"-"`
	KBID           string                 `json:"kb_id"`
	Source         string                 `json:"source"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	Status         string                 `json:"status"`
	FailureReason  string                 `json:"failure_reason,omitempty"`
	Attempts       int                    `json:"attempts"`
	ChunkCount     int                    `json:"chunk_count"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Ctime          int64                  `json:"ctime"`
	Mtime          int64                  `json:"mtime"`
}

func (d *Document) Terminal() bool {
	return d.Status == DocumentStatusReady || d.Status == DocumentStatusFailed
}
