// project_repository.go implements ProjectRepository. Project CRUD lives
// elsewhere; this repository covers the reads and cascades the lifecycle code needs.
package repositories

import (
	"context"
	"database/sql"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// ProjectRepository handles database operations for projects
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetProject retrieves a project by ID
func (r *ProjectRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	query := `SELECT id, user_id, class_id, type, name, language, created FROM projects WHERE id = $1`
	err := r.db.GetContext(ctx, &project, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// ListUserProjects returns the projects a user owns in a class
func (r *ProjectRepository) ListUserProjects(ctx context.Context, userID, classID string) ([]*models.Project, error) {
	var projects []*models.Project
	query := `
		SELECT id, user_id, class_id, type, name, language, created
		FROM projects
		WHERE user_id = $1 AND class_id = $2
		ORDER BY created`
	if err := r.db.SelectContext(ctx, &projects, query, userID, classID); err != nil {
		return nil, err
	}
	return projects, nil
}

// DeleteUserResources removes every row that belongs to a user: projects,
// classifier bookkeeping and scratch keys. Remote classifiers must be removed
// by the caller first. Each statement is independent; a failure part way
// leaves the earlier deletes in place and is safe to retry.
func (r *ProjectRepository) DeleteUserResources(ctx context.Context, userID string) error {
	queries := []string{
		`DELETE FROM projects WHERE user_id = $1`,
		`DELETE FROM classifiers WHERE user_id = $1`,
		`DELETE FROM numbers_classifiers WHERE user_id = $1`,
		`DELETE FROM scratch_keys WHERE user_id = $1`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q, userID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteProject removes a single project row
func (r *ProjectRepository) DeleteProject(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

// DeleteClassResources removes every project, classifier bookkeeping row and
// scratch key in a class. Like DeleteUserResources, remote classifiers must be
// removed by the caller first.
func (r *ProjectRepository) DeleteClassResources(ctx context.Context, classID string) error {
	queries := []string{
		`DELETE FROM projects WHERE class_id = $1`,
		`DELETE FROM classifiers WHERE class_id = $1`,
		`DELETE FROM numbers_classifiers WHERE class_id = $1`,
		`DELETE FROM scratch_keys WHERE class_id = $1`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q, classID); err != nil {
			return err
		}
	}
	return nil
}
