package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragkb/internal/ai"
	"github.com/xxxsen/ragkb/internal/config"
	"github.com/xxxsen/ragkb/internal/filestore"
	"github.com/xxxsen/ragkb/internal/model"
	"github.com/xxxsen/ragkb/internal/repo"
	"github.com/xxxsen/ragkb/internal/service"
	"github.com/xxxsen/ragkb/test/testutil"
)

type ingestEnv struct {
	kbs    *service.KnowledgeBaseService
	ingest *service.IngestService
	search *service.SearchService
	docs   *repo.DocumentRepo
}

func newIngestEnv(t *testing.T) *ingestEnv {
	t.Helper()
	conn, cleanup := testutil.OpenTestDB(t)
	t.Cleanup(cleanup)
	testutil.Truncate(t, conn)

	kbRepo := repo.NewKnowledgeBaseRepo(conn)
	docRepo := repo.NewDocumentRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)

	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)

	provider, err := ai.NewProvider("stub", map[string]interface{}{"dimension": testutil.TestVectorDim})
	require.NoError(t, err)
	embedder := ai.NewValidatedEmbedder(ai.NewEmbedder(provider, "stub-embed"), testutil.TestVectorDim)

	ingest, err := service.NewIngestService(config.IngestConfig{
		Workers:           2,
		ChunkSize:         10,
		ChunkOverlap:      2,
		MaxUploadSize:     1 << 20,
		StuckAfterMinutes: 1,
	}, kbRepo, docRepo, chunkRepo, store, embedder, nil)
	require.NoError(t, err)
	t.Cleanup(ingest.Close)

	search := service.NewSearchService(config.RetrievalConfig{
		RRFK:        60,
		Oversample:  4,
		DefaultTopK: 5,
		MaxTopK:     50,
		PathTimeout: 5,
	}, kbRepo, chunkRepo, embedder, nil)

	return &ingestEnv{
		kbs:    service.NewKnowledgeBaseService(kbRepo, docRepo, chunkRepo),
		ingest: ingest,
		search: search,
		docs:   docRepo,
	}
}

func waitTerminal(t *testing.T, env *ingestEnv, tenantID, docID string) *model.Document {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := env.ingest.GetDocument(context.Background(), tenantID, docID)
		require.NoError(t, err)
		if doc.Terminal() {
			return doc
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("document %s never reached a terminal state", docID)
	return nil
}

func textRequest(kbID, text, key string) *service.IngestRequest {
	return &service.IngestRequest{
		KBID:           kbID,
		Source:         "notes.txt",
		ContentType:    "text/plain",
		IdempotencyKey: key,
		Content:        strings.NewReader(text),
		Size:           int64(len(text)),
	}
}

func TestIngestToReadyAndSearchable(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()
	kb, err := env.kbs.Create(ctx, "tenant-1", "docs", "")
	require.NoError(t, err)

	text := strings.Repeat("quarterly earnings grew strongly this year. ", 20)
	result, err := env.ingest.Ingest(ctx, "tenant-1", textRequest(kb.ID, text, ""))
	require.NoError(t, err)
	require.True(t, result.Accepted)

	doc := waitTerminal(t, env, "tenant-1", result.Document.ID)
	require.Equal(t, model.DocumentStatusReady, doc.Status)
	require.Greater(t, doc.ChunkCount, 1)

	found, err := env.search.Search(ctx, "tenant-1", &service.SearchRequest{
		KBID:  kb.ID,
		Query: "earnings",
		Mode:  model.SearchModeHybrid,
		TopK:  5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, found.Chunks)
	require.False(t, found.Degraded)
}

func TestIngestEmptyTextFails(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()
	kb, err := env.kbs.Create(ctx, "tenant-1", "docs", "")
	require.NoError(t, err)

	result, err := env.ingest.Ingest(ctx, "tenant-1", textRequest(kb.ID, "   \n\t   ", ""))
	require.NoError(t, err)

	doc := waitTerminal(t, env, "tenant-1", result.Document.ID)
	require.Equal(t, model.DocumentStatusFailed, doc.Status)
	require.NotEmpty(t, doc.FailureReason)
	require.Zero(t, doc.ChunkCount)
}

func TestIngestIdempotencyReusesDocument(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()
	kb, err := env.kbs.Create(ctx, "tenant-1", "docs", "")
	require.NoError(t, err)

	first, err := env.ingest.Ingest(ctx, "tenant-1", textRequest(kb.ID, "stable document body", "key-1"))
	require.NoError(t, err)
	require.True(t, first.Accepted)
	doc := waitTerminal(t, env, "tenant-1", first.Document.ID)
	require.Equal(t, model.DocumentStatusReady, doc.Status)

	// READY document with the same key: retry is a no-op.
	second, err := env.ingest.Ingest(ctx, "tenant-1", textRequest(kb.ID, "stable document body", "key-1"))
	require.NoError(t, err)
	require.False(t, second.Accepted)
	require.Equal(t, first.Document.ID, second.Document.ID)
	require.Equal(t, model.DocumentStatusReady, second.Document.Status)
}

func TestIngestFailedRetryReclaimsSameDocument(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()
	kb, err := env.kbs.Create(ctx, "tenant-1", "docs", "")
	require.NoError(t, err)

	// Empty payload fails the pipeline after the document row exists.
	first, err := env.ingest.Ingest(ctx, "tenant-1", textRequest(kb.ID, "   ", "key-1"))
	require.NoError(t, err)
	doc := waitTerminal(t, env, "tenant-1", first.Document.ID)
	require.Equal(t, model.DocumentStatusFailed, doc.Status)

	// Retrying the same key with a good payload revives the same document.
	retry, err := env.ingest.Ingest(ctx, "tenant-1", textRequest(kb.ID, "now with real content inside", "key-1"))
	require.NoError(t, err)
	require.True(t, retry.Accepted)
	require.Equal(t, first.Document.ID, retry.Document.ID)

	doc = waitTerminal(t, env, "tenant-1", first.Document.ID)
	require.Equal(t, model.DocumentStatusReady, doc.Status)
	require.Greater(t, doc.ChunkCount, 0)
	require.GreaterOrEqual(t, doc.Attempts, 2)
}

func TestIngestRejectsForeignKB(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()
	kb, err := env.kbs.Create(ctx, "tenant-1", "docs", "")
	require.NoError(t, err)

	_, err = env.ingest.Ingest(ctx, "tenant-2", textRequest(kb.ID, "contents", ""))
	require.Error(t, err)
}

func TestIngestConcurrentSameKeyOneDocument(t *testing.T) {
	env := newIngestEnv(t)
	ctx := context.Background()
	kb, err := env.kbs.Create(ctx, "tenant-1", "docs", "")
	require.NoError(t, err)

	// All racers use the same idempotency key; exactly one document row may
	// exist afterwards and it must end up READY.
	const racers = 8
	docIDs := make([]string, racers)
	errs := make([]error, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			result, err := env.ingest.Ingest(ctx, "tenant-1",
				textRequest(kb.ID, "racing ingestion payload with enough words to chunk", "race-key"))
			if err != nil {
				errs[i] = err
				return
			}
			docIDs[i] = result.Document.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, docIDs[0], docIDs[i])
	}

	doc := waitTerminal(t, env, "tenant-1", docIDs[0])
	require.Equal(t, model.DocumentStatusReady, doc.Status)

	listed, err := env.docs.ListByKB(ctx, "tenant-1", kb.ID, 100)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
