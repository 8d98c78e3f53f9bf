package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragkb/internal/repo"
)

const reaperBatchSize = 100

// IngestReaperJob fails documents stuck in PROCESSING, usually because the
// process died mid-pipeline. Failing them makes the idempotency-key retry
// path available again.
type IngestReaperJob struct {
	docs         *repo.DocumentRepo
	stuckAfter   time.Duration
	failedReason string
}

func NewIngestReaperJob(docs *repo.DocumentRepo, stuckAfter time.Duration) *IngestReaperJob {
	if stuckAfter <= 0 {
		stuckAfter = 30 * time.Minute
	}
	return &IngestReaperJob{
		docs:         docs,
		stuckAfter:   stuckAfter,
		failedReason: "processing timeout",
	}
}

func (j *IngestReaperJob) Name() string {
	return "ingest_reaper"
}

func (j *IngestReaperJob) Run(ctx context.Context) error {
	if j.docs == nil {
		return nil
	}
	cutoff := time.Now().Add(-j.stuckAfter).UnixMilli()
	stuck, err := j.docs.ListStuckProcessing(ctx, cutoff, reaperBatchSize)
	if err != nil {
		return err
	}
	for _, doc := range stuck {
		if err := j.docs.MarkFailed(ctx, doc.ID, j.failedReason); err != nil {
			return err
		}
		logutil.GetLogger(ctx).Warn("reaped stuck document",
			zap.String("document_id", doc.ID),
			zap.String("kb_id", doc.KBID),
			zap.Int64("mtime", doc.Mtime),
		)
	}
	return nil
}
