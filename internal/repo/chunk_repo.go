package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ragkb/internal/model"
)

const chunkInsertBatchSize = 100

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceForDocument swaps the full chunk set of a document and flips it to
// READY in one transaction. A search running concurrently with a FAILED-retry
// sees either the old chunk set or the new one, never a mix.
func (r *ChunkRepo) ReplaceForDocument(ctx context.Context, doc *model.Document, chunks []model.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return err
	}
	for start := 0; start < len(chunks); start += chunkInsertBatchSize {
		end := start + chunkInsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := insertChunkBatch(ctx, tx, chunks[start:end]); err != nil {
			return err
		}
	}
	const markReady = `
		UPDATE documents
		SET status = $2, chunk_count = $3, failure_reason = '', mtime = $4
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, markReady, doc.ID, model.DocumentStatusReady, len(chunks), time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChunkBatch(ctx context.Context, tx *sql.Tx, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	placeholders := make([]string, 0, len(chunks))
	args := make([]interface{}, 0, len(chunks)*9)
	for i, c := range chunks {
		base := i * 9
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		metadata, err := marshalMetadata(c.Metadata)
		if err != nil {
			return err
		}
		args = append(args, c.ID, c.TenantID, c.KBID, c.DocumentID, c.Position, c.Content,
			pgvector.NewVector(c.Embedding), metadata, c.Ctime)
	}
	query := `INSERT INTO chunks (id, tenant_id, kb_id, document_id, position, content, embedding, metadata, ctime) VALUES ` +
		strings.Join(placeholders, ", ")
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// VectorSearch returns the chunks nearest to the query embedding by cosine
// distance. Embeddings are stored normalized, so 1 - distance is the cosine
// similarity.
func (r *ChunkRepo) VectorSearch(ctx context.Context, tenantID, kbID string, embedding []float32, limit int) ([]model.ScoredChunk, error) {
	const query = `
		SELECT id, kb_id, document_id, position, content, metadata, ctime,
		       1 - (embedding <=> $3) AS score
		FROM chunks
		WHERE tenant_id = $1 AND kb_id = $2
		ORDER BY embedding <=> $3 ASC, id ASC
		LIMIT $4
	`
	return r.searchQuery(ctx, query, tenantID, kbID, pgvector.NewVector(embedding), limit)
}

// LexicalSearch ranks chunks by full-text match quality against the query.
func (r *ChunkRepo) LexicalSearch(ctx context.Context, tenantID, kbID, queryText string, limit int) ([]model.ScoredChunk, error) {
	const query = `
		SELECT id, kb_id, document_id, position, content, metadata, ctime,
		       ts_rank_cd(content_tsv, plainto_tsquery('english', $3)) AS score
		FROM chunks
		WHERE tenant_id = $1 AND kb_id = $2
		  AND content_tsv @@ plainto_tsquery('english', $3)
		ORDER BY score DESC, id ASC
		LIMIT $4
	`
	return r.searchQuery(ctx, query, tenantID, kbID, queryText, limit)
}

func (r *ChunkRepo) searchQuery(ctx context.Context, query string, tenantID, kbID string, match interface{}, limit int) ([]model.ScoredChunk, error) {
	rows, err := r.db.QueryContext(ctx, query, tenantID, kbID, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.ScoredChunk, 0, limit)
	for rows.Next() {
		var sc model.ScoredChunk
		var metadata []byte
		if err := rows.Scan(&sc.ID, &sc.KBID, &sc.DocumentID, &sc.Position, &sc.Content,
			&metadata, &sc.Ctime, &sc.Score); err != nil {
			return nil, err
		}
		sc.TenantID = tenantID
		parsed, err := unmarshalMetadata(metadata)
		if err != nil {
			return nil, err
		}
		sc.Metadata = parsed
		results = append(results, sc)
	}
	return results, rows.Err()
}

// CountForKB reports chunk volume for a knowledge base, used by settings.
func (r *ChunkRepo) CountForKB(ctx context.Context, tenantID, kbID string) (int64, error) {
	const query = `SELECT COUNT(1) FROM chunks WHERE tenant_id = $1 AND kb_id = $2`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, tenantID, kbID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
