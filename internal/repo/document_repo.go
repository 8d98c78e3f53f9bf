package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragkb/internal/model"
	"github.com/xxxsen/ragkb/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// CreateIfAbsent inserts the document, or reports created=false when another
// document already holds the same (tenant, kb, idempotency_key). The partial
// unique index makes this an atomic insert-if-absent; there is no
// read-then-write window for concurrent retries to slip through.
func (r *DocumentRepo) CreateIfAbsent(ctx context.Context, doc *model.Document) (bool, error) {
	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return false, err
	}
	var key interface{}
	if doc.IdempotencyKey != "" {
		key = doc.IdempotencyKey
	}
	const query = `
		INSERT INTO documents (id, tenant_id, kb_id, source, idempotency_key, status, failure_reason, attempts, chunk_count, metadata, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, '', 0, 0, $7, $8, $9)
		ON CONFLICT (tenant_id, kb_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.TenantID, doc.KBID, doc.Source, key, doc.Status, metadata, doc.Ctime, doc.Mtime)
	if err != nil {
		if dbutil.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":        docID,
		"tenant_id": tenantID,
	}
	return r.getOne(ctx, where)
}

func (r *DocumentRepo) GetByIdempotencyKey(ctx context.Context, tenantID, kbID, key string) (*model.Document, error) {
	where := map[string]interface{}{
		"tenant_id":       tenantID,
		"kb_id":           kbID,
		"idempotency_key": key,
	}
	return r.getOne(ctx, where)
}

func (r *DocumentRepo) ListByKB(ctx context.Context, tenantID, kbID string, limit uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"tenant_id": tenantID,
		"kb_id":     kbID,
		"_orderby":  "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *doc)
	}
	return results, rows.Err()
}

// MarkProcessing moves a fresh document out of UPLOADED. The status guard
// makes the transition a compare-and-swap: only one worker wins.
func (r *DocumentRepo) MarkProcessing(ctx context.Context, docID string) (bool, error) {
	const query = `
		UPDATE documents
		SET status = $2, attempts = attempts + 1, failure_reason = '', mtime = $3
		WHERE id = $1 AND status = $4
	`
	return r.exec(ctx, query, docID, model.DocumentStatusProcessing, time.Now().UnixMilli(), model.DocumentStatusUploaded)
}

// ReclaimFailed revives a FAILED document for a re-ingestion request that
// reuses its idempotency key. Only one concurrent retry can win the swap.
func (r *DocumentRepo) ReclaimFailed(ctx context.Context, tenantID, docID string) (bool, error) {
	const query = `
		UPDATE documents
		SET status = $3, attempts = attempts + 1, failure_reason = '', chunk_count = 0, mtime = $4
		WHERE id = $1 AND tenant_id = $2 AND status = $5
	`
	return r.exec(ctx, query, docID, tenantID, model.DocumentStatusProcessing, time.Now().UnixMilli(), model.DocumentStatusFailed)
}

// MarkFailed records the stage error on any non-terminal document.
func (r *DocumentRepo) MarkFailed(ctx context.Context, docID string, reason string) error {
	const query = `
		UPDATE documents
		SET status = $2, failure_reason = $3, mtime = $4
		WHERE id = $1 AND status IN ($5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		docID, model.DocumentStatusFailed, reason, time.Now().UnixMilli(),
		model.DocumentStatusUploaded, model.DocumentStatusProcessing)
	return err
}

// ListStuckProcessing finds documents whose pipeline died without reaching a
// terminal state, for the reaper job.
func (r *DocumentRepo) ListStuckProcessing(ctx context.Context, mtimeBefore int64, limit int) ([]model.Document, error) {
	const query = `
		SELECT id, tenant_id, kb_id, source, idempotency_key, status, failure_reason, attempts, chunk_count, metadata, ctime, mtime
		FROM documents
		WHERE status = $1 AND mtime < $2
		ORDER BY mtime ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, model.DocumentStatusProcessing, mtimeBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *doc)
	}
	return results, rows.Err()
}

func (r *DocumentRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) exec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func documentColumns() []string {
	return []string{"id", "tenant_id", "kb_id", "source", "idempotency_key", "status", "failure_reason", "attempts", "chunk_count", "metadata", "ctime", "mtime"}
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var key sql.NullString
	var metadata []byte
	if err := row.Scan(&doc.ID, &doc.TenantID, &doc.KBID, &doc.Source, &key, &doc.Status,
		&doc.FailureReason, &doc.Attempts, &doc.ChunkCount, &metadata, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	doc.IdempotencyKey = key.String
	parsed, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	doc.Metadata = parsed
	return &doc, nil
}
