package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragkb/internal/ai"
	"github.com/xxxsen/ragkb/internal/chunker"
	"github.com/xxxsen/ragkb/internal/config"
	"github.com/xxxsen/ragkb/internal/extract"
	"github.com/xxxsen/ragkb/internal/filestore"
	"github.com/xxxsen/ragkb/internal/metrics"
	"github.com/xxxsen/ragkb/internal/model"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
	"github.com/xxxsen/ragkb/internal/repo"
)

// IngestRequest carries one document into the pipeline. Content must be
// seekable because it is persisted to the file store before processing.
type IngestRequest struct {
	KBID           string
	Source         string
	ContentType    string
	IdempotencyKey string
	Metadata       map[string]interface{}
	Content        io.ReadSeeker
	Size           int64
}

// IngestResult reports where the request landed: a freshly accepted document,
// a FAILED one reclaimed for retry, or an existing document returned as-is.
type IngestResult struct {
	Document *model.Document
	Accepted bool
}

type IngestService struct {
	cfg      config.IngestConfig
	kbs      *repo.KnowledgeBaseRepo
	docs     *repo.DocumentRepo
	chunks   *repo.ChunkRepo
	store    filestore.Store
	embedder ai.IEmbedder
	splitter *chunker.Chunker
	pool     *ants.Pool
	metrics  *metrics.Metrics
}

func NewIngestService(cfg config.IngestConfig, kbs *repo.KnowledgeBaseRepo, docs *repo.DocumentRepo,
	chunks *repo.ChunkRepo, store filestore.Store, embedder ai.IEmbedder, m *metrics.Metrics) (*IngestService, error) {
	pool, err := ants.NewPool(cfg.Workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create ingest pool: %w", err)
	}
	splitter := chunker.New(chunker.Config{
		ChunkSize:          cfg.ChunkSize,
		Overlap:            cfg.ChunkOverlap,
		PreserveBoundaries: cfg.PreserveBoundaries,
	})
	return &IngestService{
		cfg:      cfg,
		kbs:      kbs,
		docs:     docs,
		chunks:   chunks,
		store:    store,
		embedder: embedder,
		splitter: splitter,
		pool:     pool,
		metrics:  m,
	}, nil
}

func (s *IngestService) Close() {
	s.pool.Release()
}

// Ingest accepts a document for asynchronous processing. With an idempotency
// key, a repeated request maps onto the existing document: READY and
// in-flight documents are returned untouched, a FAILED one is reclaimed and
// re-processed under the same document ID.
func (s *IngestService) Ingest(ctx context.Context, tenantID string, req *IngestRequest) (*IngestResult, error) {
	if req.Content == nil || req.Size <= 0 {
		return nil, appErr.ErrInvalid
	}
	if s.cfg.MaxUploadSize > 0 && req.Size > s.cfg.MaxUploadSize {
		return nil, appErr.ErrInvalid
	}
	if _, err := s.kbs.GetByID(ctx, tenantID, req.KBID); err != nil {
		return nil, err
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "untitled"
	}
	now := time.Now().UnixMilli()
	doc := &model.Document{
		ID:             newID(),
		TenantID:       tenantID,
		KBID:           req.KBID,
		Source:         source,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Status:         model.DocumentStatusUploaded,
		Metadata:       req.Metadata,
		Ctime:          now,
		Mtime:          now,
	}
	created, err := s.docs.CreateIfAbsent(ctx, doc)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.persistAndSchedule(ctx, doc, req, false); err != nil {
			return nil, err
		}
		return &IngestResult{Document: doc, Accepted: true}, nil
	}

	existing, err := s.docs.GetByIdempotencyKey(ctx, tenantID, req.KBID, doc.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing.Status != model.DocumentStatusFailed {
		return &IngestResult{Document: existing, Accepted: false}, nil
	}
	reclaimed, err := s.docs.ReclaimFailed(ctx, tenantID, existing.ID)
	if err != nil {
		return nil, err
	}
	if !reclaimed {
		// Lost the race to another retry; report whatever state won.
		current, err := s.docs.GetByID(ctx, tenantID, existing.ID)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Document: current, Accepted: false}, nil
	}
	existing.Status = model.DocumentStatusProcessing
	if err := s.persistAndSchedule(ctx, existing, req, true); err != nil {
		return nil, err
	}
	return &IngestResult{Document: existing, Accepted: true}, nil
}

func (s *IngestService) GetDocument(ctx context.Context, tenantID, docID string) (*model.Document, error) {
	return s.docs.GetByID(ctx, tenantID, docID)
}

// OpenDocument returns the document together with its original uploaded
// payload. Not every store backend supports reading payloads back.
func (s *IngestService) OpenDocument(ctx context.Context, tenantID, docID string) (*model.Document, io.ReadCloser, error) {
	doc, err := s.docs.GetByID(ctx, tenantID, docID)
	if err != nil {
		return nil, nil, err
	}
	reader, err := s.store.Open(ctx, storeKey(doc))
	if err != nil {
		return nil, nil, fmt.Errorf("open payload: %w", err)
	}
	return doc, reader, nil
}

func (s *IngestService) persistAndSchedule(ctx context.Context, doc *model.Document, req *IngestRequest, claimed bool) error {
	if _, err := req.Content.Seek(0, io.SeekStart); err != nil {
		s.failDocument(ctx, doc.ID, fmt.Sprintf("persist: %v", err))
		return fmt.Errorf("%w: %v", appErr.ErrIngest, err)
	}
	payload, err := io.ReadAll(req.Content)
	if err != nil {
		s.failDocument(ctx, doc.ID, fmt.Sprintf("persist: %v", err))
		return fmt.Errorf("%w: %v", appErr.ErrIngest, err)
	}
	if err := s.store.Save(ctx, storeKey(doc), bytes.NewReader(payload), int64(len(payload))); err != nil {
		s.failDocument(ctx, doc.ID, fmt.Sprintf("persist: %v", err))
		return fmt.Errorf("%w: %v", appErr.ErrIngest, err)
	}
	task := &ingestTask{doc: doc, payload: payload, contentType: req.ContentType, claimed: claimed}
	if err := s.pool.Submit(func() { s.process(task) }); err != nil {
		s.failDocument(context.Background(), doc.ID, fmt.Sprintf("schedule: %v", err))
		return fmt.Errorf("%w: %v", appErr.ErrIngest, err)
	}
	return nil
}

type ingestTask struct {
	doc         *model.Document
	payload     []byte
	contentType string
	// claimed documents are already PROCESSING (reclaimed retries); fresh
	// uploads still need the UPLOADED -> PROCESSING swap.
	claimed bool
}

func (s *IngestService) process(task *ingestTask) {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.StuckAfterMinutes)*time.Minute)
	defer cancel()
	doc := task.doc
	logger := logutil.GetLogger(ctx).With(
		zap.String("document_id", doc.ID),
		zap.String("kb_id", doc.KBID),
	)
	if !task.claimed {
		won, err := s.docs.MarkProcessing(ctx, doc.ID)
		if err != nil {
			logger.Error("mark processing failed", zap.Error(err))
			return
		}
		if !won {
			return
		}
	}
	start := time.Now()
	if err := s.runPipeline(ctx, task); err != nil {
		logger.Error("ingest pipeline failed", zap.Error(err))
		s.failDocument(ctx, doc.ID, err.Error())
		s.observeIngest(metrics.OutcomeError, start)
		return
	}
	logger.Info("document ingested", zap.Duration("cost", time.Since(start)))
	s.observeIngest(metrics.OutcomeOK, start)
}

func (s *IngestService) runPipeline(ctx context.Context, task *ingestTask) error {
	doc := task.doc
	text, err := extract.Extract(task.payload, task.contentType)
	if err != nil {
		return err
	}
	segments := s.splitter.Split(text)
	if len(segments) == 0 {
		return fmt.Errorf("extract: %w", appErr.ErrEmptyText)
	}
	contents := make([]string, 0, len(segments))
	for _, seg := range segments {
		contents = append(contents, seg.Content)
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, contents, ai.TaskTypeDocument)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	now := time.Now().UnixMilli()
	chunks := make([]model.Chunk, 0, len(segments))
	for i, seg := range segments {
		chunks = append(chunks, model.Chunk{
			ID:         newID(),
			TenantID:   doc.TenantID,
			KBID:       doc.KBID,
			DocumentID: doc.ID,
			Position:   seg.Position,
			Content:    seg.Content,
			Embedding:  embeddings[i],
			Metadata:   doc.Metadata,
			Ctime:      now,
		})
	}
	if err := s.chunks.ReplaceForDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IngestChunksTotal.Add(float64(len(chunks)))
	}
	return nil
}

func (s *IngestService) failDocument(ctx context.Context, docID, reason string) {
	if err := s.docs.MarkFailed(ctx, docID, reason); err != nil {
		logutil.GetLogger(ctx).Error("mark document failed",
			zap.String("document_id", docID), zap.Error(err))
	}
}

func (s *IngestService) observeIngest(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.IngestDocumentsTotal.WithLabelValues(outcome).Inc()
	s.metrics.IngestDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func storeKey(doc *model.Document) string {
	return fmt.Sprintf("%s/%s/%s", doc.TenantID, doc.KBID, doc.ID)
}
