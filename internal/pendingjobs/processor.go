package pendingjobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/storage"
)

// Processor carries out queued jobs against the object store. Every job is
// idempotent, so a job that is run again after a partial failure is safe.
type Processor struct {
	store storage.Storage
}

// NewProcessor creates a job processor
func NewProcessor(store storage.Storage) *Processor {
	return &Processor{store: store}
}

// Process runs one job
func (p *Processor) Process(ctx context.Context, job *models.PendingJob) error {
	if err := Validate(job.JobType, job.Data); err != nil {
		return err
	}

	key := job.Data.Key()
	switch job.JobType {
	case models.JobDeleteObject:
		if err := p.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", key, err)
		}
		slog.Debug("pending jobs: deleted object", "job_id", job.ID, "key", key)
		return nil
	case models.JobDeleteProjectObjects, models.JobDeleteUserObjects, models.JobDeleteClassObjects:
		prefix := storage.DirPrefix(key)
		n, err := p.store.DeletePrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to delete objects under %s: %w", prefix, err)
		}
		slog.Debug("pending jobs: deleted objects", "job_id", job.ID, "job_type", job.JobType.String(), "prefix", prefix, "count", n)
		return nil
	default:
		return &ValidationError{JobType: job.JobType, Missing: []string{"valid job type"}}
	}
}
