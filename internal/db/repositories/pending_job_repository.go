// pending_job_repository.go implements PendingJobRepository, the durable
// store behind the object cleanup retry queue.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// PendingJobRepository handles database operations for pending jobs
type PendingJobRepository struct {
	db *sqlx.DB
}

// NewPendingJobRepository creates a new pending job repository
func NewPendingJobRepository(db *sqlx.DB) *PendingJobRepository {
	return &PendingJobRepository{db: db}
}

type pendingJobRow struct {
	ID          int64        `db:"id"`
	JobType     int          `db:"job_type"`
	JobData     []byte       `db:"job_data"`
	Attempts    int          `db:"attempts"`
	LastAttempt sql.NullTime `db:"last_attempt"`
}

// Insert appends a job to the queue and sets job.ID
func (r *PendingJobRepository) Insert(ctx context.Context, job *models.PendingJob) error {
	data, err := json.Marshal(job.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}
	query := `
		INSERT INTO pending_jobs (job_type, job_data, attempts, last_attempt)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return r.db.QueryRowxContext(ctx, query, int(job.JobType), data, job.Attempts, job.LastAttempt).Scan(&job.ID)
}

// GetOldest returns the job at the head of the queue, or nil when it is empty
func (r *PendingJobRepository) GetOldest(ctx context.Context) (*models.PendingJob, error) {
	var row pendingJobRow
	query := `
		SELECT id, job_type, job_data, attempts, last_attempt
		FROM pending_jobs
		ORDER BY id
		LIMIT 1`
	err := r.db.GetContext(ctx, &row, query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toJob()
}

func (row *pendingJobRow) toJob() (*models.PendingJob, error) {
	job := &models.PendingJob{
		ID:          row.ID,
		JobType:     models.JobType(row.JobType),
		Attempts:    row.Attempts,
		LastAttempt: row.LastAttempt,
	}
	if err := json.Unmarshal(row.JobData, &job.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data for pending job %d: %w", row.ID, err)
	}
	return job, nil
}

// RecordAttempt increments a job's attempt count and returns the updated
// job, or nil when the job is no longer queued.
func (r *PendingJobRepository) RecordAttempt(ctx context.Context, id int64, at time.Time) (*models.PendingJob, error) {
	var row pendingJobRow
	query := `
		UPDATE pending_jobs SET attempts = attempts + 1, last_attempt = $1
		WHERE id = $2
		RETURNING id, job_type, job_data, attempts, last_attempt`
	err := r.db.GetContext(ctx, &row, query, at, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toJob()
}

// Delete removes a job from the queue
func (r *PendingJobRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_jobs WHERE id = $1`, id)
	return err
}

// DeleteAll empties the queue
func (r *PendingJobRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_jobs`)
	return err
}
