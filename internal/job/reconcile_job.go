package job

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragbase/internal/index"
	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
	"github.com/xxxsen/ragbase/internal/registry"
)

// ReconcileJob sweeps the registry against the vector index: it flags
// chunk-count drift for ready documents, expires entries stuck in
// processing, and re-attempts the cascade for deletes that failed halfway.
type ReconcileJob struct {
	reg                  registry.Registry
	idx                  index.Index
	staleAfter           time.Duration
	retryFailedDeletions bool
}

func NewReconcileJob(reg registry.Registry, idx index.Index, staleAfter time.Duration, retryFailedDeletions bool) *ReconcileJob {
	return &ReconcileJob{
		reg:                  reg,
		idx:                  idx,
		staleAfter:           staleAfter,
		retryFailedDeletions: retryFailedDeletions,
	}
}

func (j *ReconcileJob) Name() string {
	return "reconcile"
}

func (j *ReconcileJob) Run(ctx context.Context) error {
	docs, err := j.reg.List(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, doc := range docs {
		if err := j.reconcileOne(ctx, doc); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (j *ReconcileJob) reconcileOne(ctx context.Context, doc *model.Document) error {
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", doc.ID), zap.String("status", string(doc.Status)))
	switch doc.Status {
	case model.DocumentStatusReady:
		indexed, err := j.idx.CountByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		if indexed != doc.ChunkCount {
			logger.Error("chunk count drift detected",
				zap.Int("registry_count", doc.ChunkCount),
				zap.Int("index_count", indexed),
			)
			reason := fmt.Sprintf("index holds %d chunks, registry expects %d", indexed, doc.ChunkCount)
			if err := j.reg.UpdateStatus(ctx, doc.ID, model.DocumentStatusFailed, reason); err != nil {
				return err
			}
			return fmt.Errorf("%w: document %s: %s", appErr.ErrIndexConsistency, doc.ID, reason)
		}
	case model.DocumentStatusPending, model.DocumentStatusProcessing:
		if time.Since(time.UnixMilli(doc.Ctime)) < j.staleAfter {
			return nil
		}
		logger.Warn("expiring stale ingestion")
		if _, err := j.idx.DeleteByDocument(ctx, doc.ID); err != nil {
			return err
		}
		return j.reg.UpdateStatus(ctx, doc.ID, model.DocumentStatusFailed, "ingestion timed out")
	case model.DocumentStatusFailed:
		if !j.retryFailedDeletions || !strings.HasPrefix(doc.FailReason, "cascade delete incomplete") {
			return nil
		}
		logger.Info("retrying cascade delete")
		if _, err := j.idx.DeleteByDocument(ctx, doc.ID); err != nil {
			return err
		}
		return j.reg.Delete(ctx, doc.ID)
	}
	return nil
}
