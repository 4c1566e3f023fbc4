package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperpilot/internal/ingest"
	"github.com/xxxsen/paperpilot/internal/model"
	"github.com/xxxsen/paperpilot/internal/repo"
)

const retryBatchSize = 20

// IngestRetryJob picks up documents stuck in pending or failed state and
// runs the pipeline again. Pending documents are the ones whose enqueue was
// dropped on a full queue.
type IngestRetryJob struct {
	docs   *repo.DocumentRepo
	ingest *ingest.Service
}

func NewIngestRetryJob(docs *repo.DocumentRepo, ing *ingest.Service) *IngestRetryJob {
	return &IngestRetryJob{docs: docs, ingest: ing}
}

func (j *IngestRetryJob) Name() string {
	return "ingest_retry"
}

func (j *IngestRetryJob) Run(ctx context.Context) error {
	if j.docs == nil || j.ingest == nil {
		return nil
	}
	for _, state := range []int{model.DocumentStateFailed, model.DocumentStatePending} {
		docs, err := j.docs.ListByState(ctx, state, retryBatchSize)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := j.ingest.Process(ctx, doc.UserID, doc.ID); err != nil {
				logutil.GetLogger(ctx).Warn("ingest retry failed",
					zap.String("doc_id", doc.ID),
					zap.String("state", model.DocumentStateName(state)),
					zap.Error(err))
			}
		}
	}
	return nil
}
