// classifier_repository.go implements ClassifierRepository for the bookkeeping
// rows that mirror text classifiers hosted on the remote service, plus the
// numbers classifier status rows.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

const classifierColumns = `id, credentials_id, project_id, user_id, class_id, service_type,
		external_id, url, name, language, created, updated, expiry`

// ClassifierRepository handles database operations for classifiers
type ClassifierRepository struct {
	db *sqlx.DB
}

// NewClassifierRepository creates a new classifier repository
func NewClassifierRepository(db *sqlx.DB) *ClassifierRepository {
	return &ClassifierRepository{db: db}
}

// Create inserts a classifier row
func (r *ClassifierRepository) Create(ctx context.Context, c *models.Classifier) error {
	query := `
		INSERT INTO classifiers (id, credentials_id, project_id, user_id, class_id, service_type,
			external_id, url, name, language, created, updated, expiry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.CredentialsID, c.ProjectID, c.UserID, c.ClassID, c.ServiceType,
		c.ExternalID, c.URL, c.Name, c.Language, c.Created, c.Updated, c.Expiry,
	)
	return err
}

// ListByProject returns a project's classifiers, oldest first
func (r *ClassifierRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Classifier, error) {
	var classifiers []*models.Classifier
	query := `SELECT ` + classifierColumns + ` FROM classifiers WHERE project_id = $1 ORDER BY created`
	if err := r.db.SelectContext(ctx, &classifiers, query, projectID); err != nil {
		return nil, err
	}
	return classifiers, nil
}

// GetByExternalID retrieves a classifier by the id the remote service assigned
func (r *ClassifierRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Classifier, error) {
	var c models.Classifier
	query := `SELECT ` + classifierColumns + ` FROM classifiers WHERE external_id = $1`
	err := r.db.GetContext(ctx, &c, query, externalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListExpired returns text classifiers whose expiry is before now
func (r *ClassifierRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.Classifier, error) {
	var classifiers []*models.Classifier
	query := `SELECT ` + classifierColumns + `
		FROM classifiers
		WHERE service_type = $1 AND expiry < $2
		ORDER BY expiry`
	if err := r.db.SelectContext(ctx, &classifiers, query, models.ServiceTypeText, now); err != nil {
		return nil, err
	}
	return classifiers, nil
}

// ListByClass returns every text classifier in a class
func (r *ClassifierRepository) ListByClass(ctx context.Context, classID string) ([]*models.Classifier, error) {
	var classifiers []*models.Classifier
	query := `SELECT ` + classifierColumns + `
		FROM classifiers
		WHERE class_id = $1 AND service_type = $2
		ORDER BY created`
	if err := r.db.SelectContext(ctx, &classifiers, query, classID, models.ServiceTypeText); err != nil {
		return nil, err
	}
	return classifiers, nil
}

// ListByCredentials returns the classifiers built with a credentials set
func (r *ClassifierRepository) ListByCredentials(ctx context.Context, credentialsID string) ([]*models.Classifier, error) {
	var classifiers []*models.Classifier
	query := `SELECT ` + classifierColumns + ` FROM classifiers WHERE credentials_id = $1`
	if err := r.db.SelectContext(ctx, &classifiers, query, credentialsID); err != nil {
		return nil, err
	}
	return classifiers, nil
}

// UpdateExpiry sets a classifier's expiry
func (r *ClassifierRepository) UpdateExpiry(ctx context.Context, id string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE classifiers SET expiry = $1 WHERE id = $2`, expiry, id)
	return err
}

// UpdateTraining records a retrain of an existing classifier. The creation
// time is left as it is.
func (r *ClassifierRepository) UpdateTraining(ctx context.Context, c *models.Classifier) error {
	query := `UPDATE classifiers SET updated = $1, expiry = $2, name = $3, language = $4 WHERE id = $5`
	_, err := r.db.ExecContext(ctx, query, c.Updated, c.Expiry, c.Name, c.Language, c.ID)
	return err
}

// Delete removes a classifier row
func (r *ClassifierRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM classifiers WHERE id = $1`, id)
	return err
}

// DeleteByProject removes every classifier row for a project
func (r *ClassifierRepository) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM classifiers WHERE project_id = $1`, projectID)
	return err
}

// Numbers classifiers

// UpsertNumbers stores the status of a project's numbers classifier
func (r *ClassifierRepository) UpsertNumbers(ctx context.Context, c *models.NumbersClassifier) error {
	query := `
		INSERT INTO numbers_classifiers (project_id, user_id, class_id, created, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id) DO UPDATE SET created = EXCLUDED.created, status = EXCLUDED.status`
	_, err := r.db.ExecContext(ctx, query, c.ProjectID, c.UserID, c.ClassID, c.Created, c.Status)
	return err
}

// GetNumbers retrieves a project's numbers classifier status
func (r *ClassifierRepository) GetNumbers(ctx context.Context, projectID string) (*models.NumbersClassifier, error) {
	var c models.NumbersClassifier
	query := `SELECT project_id, user_id, class_id, created, status FROM numbers_classifiers WHERE project_id = $1`
	err := r.db.GetContext(ctx, &c, query, projectID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteNumbers removes a project's numbers classifier status
func (r *ClassifierRepository) DeleteNumbers(ctx context.Context, projectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM numbers_classifiers WHERE project_id = $1`, projectID)
	return err
}
