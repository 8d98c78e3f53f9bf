package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragkb/internal/model"
	appErr "github.com/xxxsen/ragkb/internal/pkg/errors"
	"github.com/xxxsen/ragkb/internal/repo"
	"github.com/xxxsen/ragkb/test/testutil"
)

func newTestKB(t *testing.T, kbs *repo.KnowledgeBaseRepo, tenantID, kbID string) {
	t.Helper()
	now := time.Now().UnixMilli()
	require.NoError(t, kbs.Create(context.Background(), &model.KnowledgeBase{
		ID:       kbID,
		TenantID: tenantID,
		Name:     "kb " + kbID,
		Ctime:    now,
		Mtime:    now,
	}))
}

func newTestDoc(tenantID, kbID, docID, key string) *model.Document {
	now := time.Now().UnixMilli()
	return &model.Document{
		ID:             docID,
		TenantID:       tenantID,
		KBID:           kbID,
		Source:         "notes.md",
		IdempotencyKey: key,
		Status:         model.DocumentStatusUploaded,
		Ctime:          now,
		Mtime:          now,
	}
}

func TestDocumentIdempotentCreate(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.Truncate(t, conn)

	kbs := repo.NewKnowledgeBaseRepo(conn)
	docs := repo.NewDocumentRepo(conn)
	ctx := context.Background()
	newTestKB(t, kbs, "tenant-1", "kb-1")

	created, err := docs.CreateIfAbsent(ctx, newTestDoc("tenant-1", "kb-1", "doc-1", "key-1"))
	require.NoError(t, err)
	require.True(t, created)

	// Same key: insert is a no-op, the original row wins.
	created, err = docs.CreateIfAbsent(ctx, newTestDoc("tenant-1", "kb-1", "doc-2", "key-1"))
	require.NoError(t, err)
	require.False(t, created)

	existing, err := docs.GetByIdempotencyKey(ctx, "tenant-1", "kb-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, "doc-1", existing.ID)

	// A different key creates an independent document.
	created, err = docs.CreateIfAbsent(ctx, newTestDoc("tenant-1", "kb-1", "doc-3", "key-2"))
	require.NoError(t, err)
	require.True(t, created)

	// Documents without keys never collide.
	created, err = docs.CreateIfAbsent(ctx, newTestDoc("tenant-1", "kb-1", "doc-4", ""))
	require.NoError(t, err)
	require.True(t, created)
	created, err = docs.CreateIfAbsent(ctx, newTestDoc("tenant-1", "kb-1", "doc-5", ""))
	require.NoError(t, err)
	require.True(t, created)
}

func TestDocumentStatusTransitions(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.Truncate(t, conn)

	kbs := repo.NewKnowledgeBaseRepo(conn)
	docs := repo.NewDocumentRepo(conn)
	ctx := context.Background()
	newTestKB(t, kbs, "tenant-1", "kb-1")

	_, err := docs.CreateIfAbsent(ctx, newTestDoc("tenant-1", "kb-1", "doc-1", "key-1"))
	require.NoError(t, err)

	won, err := docs.MarkProcessing(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, won)

	// Second claim loses the swap.
	won, err = docs.MarkProcessing(ctx, "doc-1")
	require.NoError(t, err)
	require.False(t, won)

	require.NoError(t, docs.MarkFailed(ctx, "doc-1", "embed: provider down"))
	doc, err := docs.GetByID(ctx, "tenant-1", "doc-1")
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusFailed, doc.Status)
	require.Equal(t, "embed: provider down", doc.FailureReason)
	require.Equal(t, 1, doc.Attempts)

	// FAILED documents are reclaimable exactly once per race.
	reclaimed, err := docs.ReclaimFailed(ctx, "tenant-1", "doc-1")
	require.NoError(t, err)
	require.True(t, reclaimed)
	reclaimed, err = docs.ReclaimFailed(ctx, "tenant-1", "doc-1")
	require.NoError(t, err)
	require.False(t, reclaimed)

	doc, err = docs.GetByID(ctx, "tenant-1", "doc-1")
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusProcessing, doc.Status)
	require.Equal(t, 2, doc.Attempts)
	require.Empty(t, doc.FailureReason)
}

func TestDocumentTenantIsolation(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.Truncate(t, conn)

	kbs := repo.NewKnowledgeBaseRepo(conn)
	docs := repo.NewDocumentRepo(conn)
	ctx := context.Background()
	newTestKB(t, kbs, "tenant-1", "kb-1")

	_, err := docs.CreateIfAbsent(ctx, newTestDoc("tenant-1", "kb-1", "doc-1", ""))
	require.NoError(t, err)

	_, err = docs.GetByID(ctx, "tenant-2", "doc-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	reclaimable, err := docs.ReclaimFailed(ctx, "tenant-2", "doc-1")
	require.NoError(t, err)
	require.False(t, reclaimable)
}

func TestListStuckProcessing(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	testutil.Truncate(t, conn)

	kbs := repo.NewKnowledgeBaseRepo(conn)
	docs := repo.NewDocumentRepo(conn)
	ctx := context.Background()
	newTestKB(t, kbs, "tenant-1", "kb-1")

	_, err := docs.CreateIfAbsent(ctx, newTestDoc("tenant-1", "kb-1", "doc-1", ""))
	require.NoError(t, err)
	won, err := docs.MarkProcessing(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, won)

	stuck, err := docs.ListStuckProcessing(ctx, time.Now().Add(time.Minute).UnixMilli(), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, "doc-1", stuck[0].ID)

	// Nothing is stuck when the cutoff predates the document.
	stuck, err = docs.ListStuckProcessing(ctx, time.Now().Add(-time.Hour).UnixMilli(), 10)
	require.NoError(t, err)
	require.Empty(t, stuck)
}
