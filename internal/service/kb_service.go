package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/ragkb/internal/model"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
	"github.com/xxxsen/ragkb/internal/repo"
)

const maxKBNameLength = 200

type KnowledgeBaseService struct {
	kbs    *repo.KnowledgeBaseRepo
	docs   *repo.DocumentRepo
	chunks *repo.ChunkRepo
}

func NewKnowledgeBaseService(kbs *repo.KnowledgeBaseRepo, docs *repo.DocumentRepo, chunks *repo.ChunkRepo) *KnowledgeBaseService {
	return &KnowledgeBaseService{kbs: kbs, docs: docs, chunks: chunks}
}

func (s *KnowledgeBaseService) Create(ctx context.Context, tenantID, name, description string) (*model.KnowledgeBase, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxKBNameLength {
		return nil, appErr.ErrInvalid
	}
	now := time.Now().UnixMilli()
	kb := &model.KnowledgeBase{
		ID:          newID(),
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(description),
		Ctime:       now,
		Mtime:       now,
	}
	if err := s.kbs.Create(ctx, kb); err != nil {
		return nil, err
	}
	return kb, nil
}

func (s *KnowledgeBaseService) Get(ctx context.Context, tenantID, kbID string) (*model.KnowledgeBase, error) {
	return s.kbs.GetByID(ctx, tenantID, kbID)
}

func (s *KnowledgeBaseService) List(ctx context.Context, tenantID string) ([]model.KnowledgeBase, error) {
	return s.kbs.List(ctx, tenantID)
}

// Delete removes the knowledge base together with its documents and chunks.
func (s *KnowledgeBaseService) Delete(ctx context.Context, tenantID, kbID string) error {
	return s.kbs.Delete(ctx, tenantID, kbID)
}

func (s *KnowledgeBaseService) ListDocuments(ctx context.Context, tenantID, kbID string, limit uint) ([]model.Document, error) {
	if _, err := s.kbs.GetByID(ctx, tenantID, kbID); err != nil {
		return nil, err
	}
	return s.docs.ListByKB(ctx, tenantID, kbID, limit)
}

// Stats reports the document and chunk volume of a knowledge base.
func (s *KnowledgeBaseService) Stats(ctx context.Context, tenantID, kbID string) (int64, error) {
	if _, err := s.kbs.GetByID(ctx, tenantID, kbID); err != nil {
		return 0, err
	}
	return s.chunks.CountForKB(ctx, tenantID, kbID)
}
