// Package jobs contains the scheduled jobs of the Tutoring Hub.
package jobs

import (
	"context"
	"errors"

	"github.com/alem-hub/tutoring-hub/internal/application/ingest"
	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/pkg/logger"
)

// MergeRefreshJobName is the scheduler name of MergeRefreshJob.
const MergeRefreshJobName = "merge_refresh"

// Refresher runs a merge refresh. Implemented by *ingest.Service.
type Refresher interface {
	MergeRefresh(ctx context.Context, sources []ingest.Source) (*ingest.MergeReport, error)
}

// SourceFunc resolves the batch sources at run time, so files added
// between runs are picked up.
type SourceFunc func(ctx context.Context) ([]ingest.Source, error)

// MergeRefreshJob merges every configured batch into the store.
// A run that finds another ingestion holding the lock is skipped, not failed.
type MergeRefreshJob struct {
	refresher Refresher
	sources   SourceFunc
	log       *logger.Logger
}

// NewMergeRefreshJob creates the job.
func NewMergeRefreshJob(refresher Refresher, sources SourceFunc, log *logger.Logger) *MergeRefreshJob {
	if log == nil {
		log = logger.Nop()
	}
	return &MergeRefreshJob{
		refresher: refresher,
		sources:   sources,
		log:       log.With(logger.String("job", MergeRefreshJobName)),
	}
}

// Name implements scheduler.Job.
func (j *MergeRefreshJob) Name() string { return MergeRefreshJobName }

// Run implements scheduler.Job.
func (j *MergeRefreshJob) Run(ctx context.Context) error {
	sources, err := j.sources(ctx)
	if err != nil {
		return err
	}

	report, err := j.refresher.MergeRefresh(ctx, sources)
	if errors.Is(err, shared.ErrLocked) {
		j.log.Info("ingestion in progress, run skipped")
		return nil
	}
	if err != nil {
		return err
	}

	for src, berr := range report.ErrorsBySource() {
		j.log.Warn("batch skipped", logger.String("source", src), logger.Err(berr))
	}
	j.log.Info("refresh merged",
		logger.Int("batches", len(report.Batches)),
		logger.Int("added", report.Added),
		logger.Int("skipped", report.Skipped),
	)
	return nil
}
