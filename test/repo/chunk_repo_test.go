package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragkb/internal/model"
	"github.com/xxxsen/ragkb/internal/repo"
	"github.com/xxxsen/ragkb/test/testutil"
)

// axis returns a unit vector along one dimension, so cosine similarity
// between distinct axes is exactly zero.
func axis(i int) []float32 {
	vec := make([]float32, testutil.TestVectorDim)
	vec[i%testutil.TestVectorDim] = 1
	return vec
}

func newChunk(tenantID, kbID, docID, chunkID string, position int, content string, embedding []float32) model.Chunk {
	return model.Chunk{
		ID:         chunkID,
		TenantID:   tenantID,
		KBID:       kbID,
		DocumentID: docID,
		Position:   position,
		Content:    content,
		Embedding:  embedding,
		Ctime:      time.Now().UnixMilli(),
	}
}

func seedDocument(t *testing.T, docs *repo.DocumentRepo, kbs *repo.KnowledgeBaseRepo, tenantID, kbID, docID string) *model.Document {
	t.Helper()
	newTestKB(t, kbs, tenantID, kbID)
	doc := newTestDoc(tenantID, kbID, docID, "")
	created, err := docs.CreateIfAbsent(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, created)
	return doc
}

func TestChunkReplaceAndSearch(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.Truncate(t, conn)

	kbs := repo.NewKnowledgeBaseRepo(conn)
	docs := repo.NewDocumentRepo(conn)
	chunks := repo.NewChunkRepo(conn)
	ctx := context.Background()
	doc := seedDocument(t, docs, kbs, "tenant-1", "kb-1", "doc-1")

	require.NoError(t, chunks.ReplaceForDocument(ctx, doc, []model.Chunk{
		newChunk("tenant-1", "kb-1", "doc-1", "chunk-1", 0, "quarterly earnings grew by ten percent", axis(0)),
		newChunk("tenant-1", "kb-1", "doc-1", "chunk-2", 1, "the office moved to a new building", axis(1)),
	}))

	// Replacement flipped the document to READY with the chunk count.
	stored, err := docs.GetByID(ctx, "tenant-1", "doc-1")
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusReady, stored.Status)
	require.Equal(t, 2, stored.ChunkCount)

	// Vector search: querying with chunk-1's own embedding ranks it first
	// with similarity 1.
	results, err := chunks.VectorSearch(ctx, "tenant-1", "kb-1", axis(0), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "chunk-1", results[0].ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.InDelta(t, 0.0, results[1].Score, 1e-6)

	// Lexical search matches on the words, not the vectors.
	results, err = chunks.LexicalSearch(ctx, "tenant-1", "kb-1", "earnings", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "chunk-1", results[0].ID)
	require.Greater(t, results[0].Score, 0.0)

	count, err := chunks.CountForKB(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestChunkReplaceIsAtomic(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.Truncate(t, conn)

	kbs := repo.NewKnowledgeBaseRepo(conn)
	docs := repo.NewDocumentRepo(conn)
	chunks := repo.NewChunkRepo(conn)
	ctx := context.Background()
	doc := seedDocument(t, docs, kbs, "tenant-1", "kb-1", "doc-1")

	require.NoError(t, chunks.ReplaceForDocument(ctx, doc, []model.Chunk{
		newChunk("tenant-1", "kb-1", "doc-1", "old-1", 0, "old content", axis(0)),
	}))
	require.NoError(t, chunks.ReplaceForDocument(ctx, doc, []model.Chunk{
		newChunk("tenant-1", "kb-1", "doc-1", "new-1", 0, "fresh content", axis(1)),
		newChunk("tenant-1", "kb-1", "doc-1", "new-2", 1, "more fresh content", axis(2)),
	}))

	results, err := chunks.VectorSearch(ctx, "tenant-1", "kb-1", axis(0), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, sc := range results {
		require.NotEqual(t, "old-1", sc.ID)
	}
	stored, err := docs.GetByID(ctx, "tenant-1", "doc-1")
	require.NoError(t, err)
	require.Equal(t, 2, stored.ChunkCount)
}

func TestChunkSearchTenantIsolation(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.Truncate(t, conn)

	kbs := repo.NewKnowledgeBaseRepo(conn)
	docs := repo.NewDocumentRepo(conn)
	chunks := repo.NewChunkRepo(conn)
	ctx := context.Background()
	docA := seedDocument(t, docs, kbs, "tenant-a", "kb-a", "doc-a")
	docB := seedDocument(t, docs, kbs, "tenant-b", "kb-b", "doc-b")

	require.NoError(t, chunks.ReplaceForDocument(ctx, docA, []model.Chunk{
		newChunk("tenant-a", "kb-a", "doc-a", "chunk-a", 0, "shared secret earnings report", axis(0)),
	}))
	require.NoError(t, chunks.ReplaceForDocument(ctx, docB, []model.Chunk{
		newChunk("tenant-b", "kb-b", "doc-b", "chunk-b", 0, "shared secret earnings report", axis(0)),
	}))

	// Identical content, identical vectors: each tenant still only sees its
	// own chunk on both paths.
	results, err := chunks.VectorSearch(ctx, "tenant-a", "kb-a", axis(0), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "chunk-a", results[0].ID)

	results, err = chunks.LexicalSearch(ctx, "tenant-b", "kb-b", "earnings", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "chunk-b", results[0].ID)
}

func TestKnowledgeBaseDeleteCascades(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.Truncate(t, conn)

	kbs := repo.NewKnowledgeBaseRepo(conn)
	docs := repo.NewDocumentRepo(conn)
	chunks := repo.NewChunkRepo(conn)
	ctx := context.Background()
	doc := seedDocument(t, docs, kbs, "tenant-1", "kb-1", "doc-1")

	require.NoError(t, chunks.ReplaceForDocument(ctx, doc, []model.Chunk{
		newChunk("tenant-1", "kb-1", "doc-1", "chunk-1", 0, "content", axis(0)),
	}))
	require.NoError(t, kbs.Delete(ctx, "tenant-1", "kb-1"))

	count, err := chunks.CountForKB(ctx, "tenant-1", "kb-1")
	require.NoError(t, err)
	require.Zero(t, count)
}
