// Package cleanup deletes whole projects and whole classes: the remote
// classifiers first, then the rows this service owns, and finally a queued
// object store deletion for any uploaded training data.
//
// User accounts live with the identity provider. Deleting a class here does
// not remove its users; it removes everything the lifecycle service holds for
// the class so the identity side can be cleaned up independently.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

// ProjectStore removes project rows. It is implemented by
// repositories.ProjectRepository.
type ProjectStore interface {
	DeleteProject(ctx context.Context, id string) error
	DeleteClassResources(ctx context.Context, classID string) error
}

// ProjectRowDeleter removes the rows a table holds for one project. It is
// implemented by repositories.ClassifierRepository and
// repositories.ScratchKeyRepository.
type ProjectRowDeleter interface {
	DeleteByProject(ctx context.Context, projectID string) error
}

// ClassClassifiers lists a class's text classifiers. It is implemented by
// repositories.ClassifierRepository.
type ClassClassifiers interface {
	ListByClass(ctx context.Context, classID string) ([]*models.Classifier, error)
}

// ClassifierRemover removes remote models. It is implemented by
// training.Tracker.
type ClassifierRemover interface {
	DeleteStrict(ctx context.Context, tenant *models.ClassTenant, classifier *models.Classifier) error
	DeleteProjectClassifiers(ctx context.Context, tenant *models.ClassTenant, project *models.Project)
	DeleteNumbersClassifier(ctx context.Context, project *models.Project) error
}

// ClassCredentials removes a class's own credentials. It is implemented by
// repositories.CredentialsRepository.
type ClassCredentials interface {
	DeleteAllClassCredentials(ctx context.Context, classID string) error
}

// TenantStore reads and removes class policy. It is implemented by
// repositories.TenantRepository.
type TenantStore interface {
	GetClassTenant(ctx context.Context, classID string) (*models.ClassTenant, error)
	DeleteClassTenant(ctx context.Context, classID string) error
}

// ObjectQueue schedules object store deletions. It is implemented by
// pendingjobs.Queue.
type ObjectQueue interface {
	EnqueueDeleteProject(ctx context.Context, classID, userID, projectID string) (*models.PendingJob, error)
	EnqueueDeleteClass(ctx context.Context, classID string) (*models.PendingJob, error)
}

// Deleter removes projects and classes
type Deleter struct {
	projects       ProjectStore
	classifierRows ProjectRowDeleter
	keyRows        ProjectRowDeleter
	classifiers    ClassClassifiers
	remover        ClassifierRemover
	credentials    ClassCredentials
	tenants        TenantStore
	queue          ObjectQueue
}

// Stores groups the repositories a Deleter writes to
type Stores struct {
	Projects       ProjectStore
	ClassifierRows ProjectRowDeleter
	KeyRows        ProjectRowDeleter
	Classifiers    ClassClassifiers
	Credentials    ClassCredentials
	Tenants        TenantStore
}

// NewDeleter creates a project and class deleter
func NewDeleter(stores Stores, remover ClassifierRemover, queue ObjectQueue) *Deleter {
	return &Deleter{
		projects:       stores.Projects,
		classifierRows: stores.ClassifierRows,
		keyRows:        stores.KeyRows,
		classifiers:    stores.Classifiers,
		remover:        remover,
		credentials:    stores.Credentials,
		tenants:        stores.Tenants,
		queue:          queue,
	}
}

// hasStoredObjects reports whether a project's training data lives in the
// object store
func hasStoredObjects(t models.ProjectType) (bool, error) {
	switch t {
	case models.ProjectImages, models.ProjectSounds, models.ProjectImgTfjs:
		return true, nil
	case models.ProjectText, models.ProjectNumbers:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", models.ErrInvalidProjectType, t)
	}
}

// DeleteProject removes a project's models, rows and stored training data.
// Each step is idempotent, so a failed delete can be repeated.
func (d *Deleter) DeleteProject(ctx context.Context, project *models.Project) error {
	stored, err := hasStoredObjects(project.Type)
	if err != nil {
		return err
	}

	switch project.Type {
	case models.ProjectText:
		tenant, err := d.tenants.GetClassTenant(ctx, project.ClassID)
		if err != nil {
			return fmt.Errorf("failed to read class policy: %w", err)
		}
		d.remover.DeleteProjectClassifiers(ctx, tenant, project)
	case models.ProjectNumbers:
		if err := d.remover.DeleteNumbersClassifier(ctx, project); err != nil {
			return err
		}
	case models.ProjectImages, models.ProjectSounds, models.ProjectImgTfjs:
		// models are trained and stored client side
	}

	if err := d.classifierRows.DeleteByProject(ctx, project.ID); err != nil {
		return fmt.Errorf("failed to delete classifier rows: %w", err)
	}
	if err := d.keyRows.DeleteByProject(ctx, project.ID); err != nil {
		return fmt.Errorf("failed to delete scratch keys: %w", err)
	}
	if err := d.projects.DeleteProject(ctx, project.ID); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if stored {
		if _, err := d.queue.EnqueueDeleteProject(ctx, project.ClassID, project.UserID, project.ID); err != nil {
			return fmt.Errorf("failed to queue training data deletion: %w", err)
		}
	}
	slog.Info("project deleted", "project_id", project.ID, "class_id", project.ClassID, "type", project.Type)
	return nil
}

// DeleteClass removes every remote classifier a class built, then the class's
// rows, credentials and policy, and queues deletion of its stored objects.
// Any remote failure stops the delete before the credentials go, so a repeat
// call can still reach the classifiers that are left.
func (d *Deleter) DeleteClass(ctx context.Context, classID string) error {
	tenant, err := d.tenants.GetClassTenant(ctx, classID)
	if err != nil {
		return fmt.Errorf("failed to read class policy: %w", err)
	}

	classifiers, err := d.classifiers.ListByClass(ctx, classID)
	if err != nil {
		return fmt.Errorf("failed to list classifiers: %w", err)
	}
	var remoteErrs []error
	for _, c := range classifiers {
		if err := d.remover.DeleteStrict(ctx, tenant, c); err != nil {
			slog.Error("failed to delete classifier for deleted class", "class_id", classID, "classifier_id", c.ID, "error", err)
			remoteErrs = append(remoteErrs, err)
		}
	}
	if len(remoteErrs) > 0 {
		// Keep the credentials so the remaining classifiers can still be
		// deleted on the next attempt.
		return fmt.Errorf("failed to delete %d of %d classifiers: %w", len(remoteErrs), len(classifiers), errors.Join(remoteErrs...))
	}

	if err := d.projects.DeleteClassResources(ctx, classID); err != nil {
		return fmt.Errorf("failed to delete class resources: %w", err)
	}
	if err := d.credentials.DeleteAllClassCredentials(ctx, classID); err != nil {
		return fmt.Errorf("failed to delete class credentials: %w", err)
	}
	if err := d.tenants.DeleteClassTenant(ctx, classID); err != nil {
		return fmt.Errorf("failed to delete class policy: %w", err)
	}
	if _, err := d.queue.EnqueueDeleteClass(ctx, classID); err != nil {
		return fmt.Errorf("failed to queue class data deletion: %w", err)
	}
	slog.Info("class deleted", "class_id", classID, "classifiers", len(classifiers))
	return nil
}
