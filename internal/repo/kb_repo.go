package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ragkb/internal/model"
	"github.com/xxxsen/ragkb/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
)

type KnowledgeBaseRepo struct {
	db *sql.DB
}

func NewKnowledgeBaseRepo(db *sql.DB) *KnowledgeBaseRepo {
	return &KnowledgeBaseRepo{db: db}
}

func (r *KnowledgeBaseRepo) Create(ctx context.Context, kb *model.KnowledgeBase) error {
	data := map[string]interface{}{
		"id":          kb.ID,
		"tenant_id":   kb.TenantID,
		"name":        kb.Name,
		"description": kb.Description,
		"ctime":       kb.Ctime,
		"mtime":       kb.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("knowledge_bases", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *KnowledgeBaseRepo) GetByID(ctx context.Context, tenantID, kbID string) (*model.KnowledgeBase, error) {
	where := map[string]interface{}{
		"id":        kbID,
		"tenant_id": tenantID,
	}
	sqlStr, args, err := builder.BuildSelect("knowledge_bases", where, kbColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	kb, err := scanKB(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return kb, nil
}

func (r *KnowledgeBaseRepo) List(ctx context.Context, tenantID string) ([]model.KnowledgeBase, error) {
	where := map[string]interface{}{
		"tenant_id": tenantID,
		"_orderby":  "ctime desc",
	}
	sqlStr, args, err := builder.BuildSelect("knowledge_bases", where, kbColumns())
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.KnowledgeBase, 0)
	for rows.Next() {
		kb, err := scanKB(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *kb)
	}
	return results, rows.Err()
}

// Delete cascades to documents and chunks through the schema's foreign keys.
func (r *KnowledgeBaseRepo) Delete(ctx context.Context, tenantID, kbID string) error {
	where := map[string]interface{}{
		"id":        kbID,
		"tenant_id": tenantID,
	}
	sqlStr, args, err := builder.BuildDelete("knowledge_bases", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func kbColumns() []string {
	return []string{"id", "tenant_id", "name", "description", "ctime", "mtime"}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKB(row rowScanner) (*model.KnowledgeBase, error) {
	var kb model.KnowledgeBase
	var description sql.NullString
	if err := row.Scan(&kb.ID, &kb.TenantID, &kb.Name, &description, &kb.Ctime, &kb.Mtime); err != nil {
		return nil, err
	}
	kb.Description = description.String
	return &kb, nil
}

// marshalMetadata renders metadata as a jsonb literal. lib/pq would send a
// raw []byte as bytea, which jsonb columns reject, so this returns a string.
func marshalMetadata(metadata map[string]interface{}) (interface{}, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalMetadata(blob []byte) (map[string]interface{}, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(blob, &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}
