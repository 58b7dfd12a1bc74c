// scratch_key_repository.go implements ScratchKeyRepository. A scratch key
// row is unique per (user, project, class); writes go through a single
// INSERT ... ON CONFLICT so concurrent issuance for the same owner converges
// on one row.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/IBM/taxinomitis-sub001/internal/crypto"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// ScratchKeyRepository handles database operations for scratch keys
type ScratchKeyRepository struct {
	db     *sqlx.DB
	cipher *crypto.SecretCipher
}

// NewScratchKeyRepository creates a new scratch key repository
func NewScratchKeyRepository(db *sqlx.DB, cipher *crypto.SecretCipher) *ScratchKeyRepository {
	return &ScratchKeyRepository{db: db, cipher: cipher}
}

// Upsert writes a scratch key. If the owner already has a key, that row is
// updated in place and its existing id is returned; otherwise key.ID is
// inserted and returned.
func (r *ScratchKeyRepository) Upsert(ctx context.Context, key *models.ScratchKey) (string, error) {
	password := key.ServicePassword
	if password.Valid {
		sealed, err := r.cipher.Seal(password.String)
		if err != nil {
			return "", fmt.Errorf("failed to seal scratch key credentials: %w", err)
		}
		password = sql.NullString{String: sealed, Valid: true}
	}

	query := `
		INSERT INTO scratch_keys (id, project_id, project_name, project_type, user_id, class_id,
			credentials_id, service_url, service_username, service_password, classifier_id, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT ON CONSTRAINT scratch_keys_owner_unique DO UPDATE SET
			project_name = EXCLUDED.project_name,
			project_type = EXCLUDED.project_type,
			credentials_id = EXCLUDED.credentials_id,
			service_url = EXCLUDED.service_url,
			service_username = EXCLUDED.service_username,
			service_password = EXCLUDED.service_password,
			classifier_id = EXCLUDED.classifier_id,
			updated = EXCLUDED.updated
		RETURNING id`
	var id string
	err := r.db.QueryRowxContext(ctx, query,
		key.ID, key.ProjectID, key.ProjectName, key.ProjectType, key.UserID, key.ClassID,
		key.CredentialsID, key.ServiceURL, key.ServiceUsername, password, key.ClassifierID, key.Updated,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves a scratch key by ID
func (r *ScratchKeyRepository) Get(ctx context.Context, id string) (*models.ScratchKey, error) {
	var key models.ScratchKey
	query := `
		SELECT id, project_id, project_name, project_type, user_id, class_id, credentials_id,
			service_url, service_username, service_password, classifier_id, updated
		FROM scratch_keys
		WHERE id = $1`
	err := r.db.GetContext(ctx, &key, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if key.ServicePassword.Valid {
		password, err := r.cipher.Open(key.ServicePassword.String)
		if err != nil {
			return nil, fmt.Errorf("failed to open scratch key %s credentials: %w", id, err)
		}
		key.ServicePassword.String = password
	}
	return &key, nil
}

const resetScratchKeyColumns = `credentials_id = NULL, service_url = NULL, service_username = NULL,
			service_password = NULL, classifier_id = NULL, updated = $1`

// ResetByClassifier clears the trained fields of keys of a project type
// pointing at a classifier, returning the number of keys reset.
func (r *ScratchKeyRepository) ResetByClassifier(ctx context.Context, classifierID string, projectType models.ProjectType, now time.Time) (int64, error) {
	query := `UPDATE scratch_keys SET ` + resetScratchKeyColumns + ` WHERE classifier_id = $2 AND project_type = $3`
	result, err := r.db.ExecContext(ctx, query, now, classifierID, projectType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ResetByCredentials clears the trained fields of keys built with a
// credentials set, returning the number of keys reset.
func (r *ScratchKeyRepository) ResetByCredentials(ctx context.Context, credentialsID string, now time.Time) (int64, error) {
	query := `UPDATE scratch_keys SET ` + resetScratchKeyColumns + ` WHERE credentials_id = $2`
	result, err := r.db.ExecContext(ctx, query, now, credentialsID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateTimestamp marks a key as used. It reports whether the key exists.
func (r *ScratchKeyRepository) UpdateTimestamp(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE scratch_keys SET updated = $1 WHERE id = $2`, now, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// DeleteByProject removes every scratch key for a project
func (r *ScratchKeyRepository) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM scratch_keys WHERE project_id = $1`, projectID)
	return err
}
