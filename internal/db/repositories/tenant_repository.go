// tenant_repository.go implements TenantRepository for per-class policy rows.
package repositories

import (
	"context"
	"database/sql"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// TenantRepository handles database operations for class tenant policy
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetClassTenant returns the policy for a class, or the default policy when
// the class has no tenants row.
func (r *TenantRepository) GetClassTenant(ctx context.Context, classID string) (*models.ClassTenant, error) {
	var tenant models.ClassTenant
	query := `
		SELECT id, project_types, tenant_type, max_users, max_projects_per_user, text_classifier_expiry
		FROM tenants
		WHERE id = $1`
	err := r.db.GetContext(ctx, &tenant, query, classID)
	if err == sql.ErrNoRows {
		return models.DefaultClassTenant(classID), nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// UpsertTextClassifierExpiry writes the tenant row, inserting it with the
// supplied policy if the class had none and otherwise only changing the text
// classifier expiry.
func (r *TenantRepository) UpsertTextClassifierExpiry(ctx context.Context, tenant *models.ClassTenant) error {
	query := `
		INSERT INTO tenants (id, project_types, tenant_type, max_users, max_projects_per_user, text_classifier_expiry)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET text_classifier_expiry = EXCLUDED.text_classifier_expiry`
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID, tenant.ProjectTypes, tenant.TenantType,
		tenant.MaxUsers, tenant.MaxProjectsPerUser, tenant.TextClassifierExpiry,
	)
	return err
}

// DeleteClassTenant removes a class's policy row
func (r *TenantRepository) DeleteClassTenant(ctx context.Context, classID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, classID)
	return err
}
