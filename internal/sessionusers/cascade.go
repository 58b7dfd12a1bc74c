package sessionusers

import (
	"context"
	"fmt"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

// ProjectStore lists and removes a user's projects and their rows. It is
// implemented by repositories.ProjectRepository.
type ProjectStore interface {
	ListUserProjects(ctx context.Context, userID, classID string) ([]*models.Project, error)
	DeleteUserResources(ctx context.Context, userID string) error
}

// TenantLookup reads class policy
type TenantLookup interface {
	GetClassTenant(ctx context.Context, classID string) (*models.ClassTenant, error)
}

// ClassifierRemover deletes the remote models of a project. It is
// implemented by training.Tracker.
type ClassifierRemover interface {
	DeleteProjectClassifiers(ctx context.Context, tenant *models.ClassTenant, project *models.Project)
}

// ProjectCascade deletes a user's remote classifiers and then every row the
// user owns.
type ProjectCascade struct {
	projects    ProjectStore
	tenants     TenantLookup
	classifiers ClassifierRemover
}

// NewProjectCascade creates a user resource cascade
func NewProjectCascade(projects ProjectStore, tenants TenantLookup, classifiers ClassifierRemover) *ProjectCascade {
	return &ProjectCascade{projects: projects, tenants: tenants, classifiers: classifiers}
}

// DeleteUser implements UserResources
func (c *ProjectCascade) DeleteUser(ctx context.Context, classID, userID string) error {
	projects, err := c.projects.ListUserProjects(ctx, userID, classID)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	if len(projects) > 0 {
		tenant, err := c.tenants.GetClassTenant(ctx, classID)
		if err != nil {
			return fmt.Errorf("failed to read class policy: %w", err)
		}
		for _, p := range projects {
			c.classifiers.DeleteProjectClassifiers(ctx, tenant, p)
		}
	}
	if err := c.projects.DeleteUserResources(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user resources: %w", err)
	}
	return nil
}
