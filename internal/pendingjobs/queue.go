// Package pendingjobs is the durable retry queue for object store cleanup.
//
// Deleting a project, user or class removes its database rows straight away
// and queues the matching object store deletion here. The queue is drained in
// insertion order by jobs.PendingJobRunner; a failed job keeps its place at
// the head and is retried on the next run. There is no cap on attempts, so a
// job that can never succeed blocks the queue until it is removed by hand.
package pendingjobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

// ErrJobNotFound is returned when a failure is recorded for a job that is no
// longer in the queue.
var ErrJobNotFound = errors.New("pending job not found")

// ValidationError reports a job missing a field its type requires
type ValidationError struct {
	JobType models.JobType
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s job: missing %s", e.JobType, strings.Join(e.Missing, ", "))
}

// JobStore persists queued jobs. It is implemented by
// repositories.PendingJobRepository.
type JobStore interface {
	Insert(ctx context.Context, job *models.PendingJob) error
	GetOldest(ctx context.Context) (*models.PendingJob, error)
	RecordAttempt(ctx context.Context, id int64, at time.Time) (*models.PendingJob, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
}

// Queue is the pending jobs queue
type Queue struct {
	store JobStore
	clock clockwork.Clock
}

// NewQueue creates a pending jobs queue
func NewQueue(store JobStore, clock clockwork.Clock) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{store: store, clock: clock}
}

// Validate checks that spec has every field jobType needs
func Validate(jobType models.JobType, spec models.ObjectSpec) error {
	var required []string
	switch jobType {
	case models.JobDeleteObject:
		required = []string{"classid", "userid", "projectid", "objectid"}
	case models.JobDeleteProjectObjects:
		required = []string{"classid", "userid", "projectid"}
	case models.JobDeleteUserObjects:
		required = []string{"classid", "userid"}
	case models.JobDeleteClassObjects:
		required = []string{"classid"}
	default:
		return &ValidationError{JobType: jobType, Missing: []string{"valid job type"}}
	}

	values := map[string]string{
		"classid":   spec.ClassID,
		"userid":    spec.UserID,
		"projectid": spec.ProjectID,
		"objectid":  spec.ObjectID,
	}
	var missing []string
	for _, field := range required {
		if values[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{JobType: jobType, Missing: missing}
	}
	return nil
}

// Enqueue validates and appends a job. Nothing is stored if validation fails.
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, spec models.ObjectSpec) (*models.PendingJob, error) {
	if err := Validate(jobType, spec); err != nil {
		return nil, err
	}
	job := &models.PendingJob{JobType: jobType, Data: spec}
	if err := q.store.Insert(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to queue %s job: %w", jobType, err)
	}
	return job, nil
}

// EnqueueDeleteObject queues the deletion of one stored object
func (q *Queue) EnqueueDeleteObject(ctx context.Context, classID, userID, projectID, objectID string) (*models.PendingJob, error) {
	return q.Enqueue(ctx, models.JobDeleteObject, models.ObjectSpec{
		ClassID: classID, UserID: userID, ProjectID: projectID, ObjectID: objectID,
	})
}

// EnqueueDeleteProject queues the deletion of every object in a project
func (q *Queue) EnqueueDeleteProject(ctx context.Context, classID, userID, projectID string) (*models.PendingJob, error) {
	return q.Enqueue(ctx, models.JobDeleteProjectObjects, models.ObjectSpec{
		ClassID: classID, UserID: userID, ProjectID: projectID,
	})
}

// EnqueueDeleteUser queues the deletion of every object owned by a user
func (q *Queue) EnqueueDeleteUser(ctx context.Context, classID, userID string) (*models.PendingJob, error) {
	return q.Enqueue(ctx, models.JobDeleteUserObjects, models.ObjectSpec{ClassID: classID, UserID: userID})
}

// EnqueueDeleteClass queues the deletion of every object in a class
func (q *Queue) EnqueueDeleteClass(ctx context.Context, classID string) (*models.PendingJob, error) {
	return q.Enqueue(ctx, models.JobDeleteClassObjects, models.ObjectSpec{ClassID: classID})
}

// DequeueOne returns the oldest job without removing it, or nil when the
// queue is empty.
func (q *Queue) DequeueOne(ctx context.Context) (*models.PendingJob, error) {
	job, err := q.store.GetOldest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending jobs: %w", err)
	}
	return job, nil
}

// RecordFailure counts a failed attempt against a job and returns the job
// as it is now stored.
func (q *Queue) RecordFailure(ctx context.Context, job *models.PendingJob) (*models.PendingJob, error) {
	updated, err := q.store.RecordAttempt(ctx, job.ID, q.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt for pending job %d: %w", job.ID, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, job.ID)
	}
	return updated, nil
}

// Complete removes a finished job. Completing a job that is already gone is
// not an error.
func (q *Queue) Complete(ctx context.Context, job *models.PendingJob) error {
	if err := q.store.Delete(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to remove pending job %d: %w", job.ID, err)
	}
	return nil
}

// Purge empties the queue
func (q *Queue) Purge(ctx context.Context) error {
	return q.store.DeleteAll(ctx)
}
