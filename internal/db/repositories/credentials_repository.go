// credentials_repository.go implements CredentialsRepository, covering both the
// class-owned credentials table and the shared credentials pool. Secrets are
// sealed with the configured cipher on write and opened on read.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/IBM/taxinomitis-sub001/internal/crypto"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
)

// CredentialsRepository handles database operations for ML service credentials
type CredentialsRepository struct {
	db     *sqlx.DB
	cipher *crypto.SecretCipher
}

// NewCredentialsRepository creates a new credentials repository
func NewCredentialsRepository(db *sqlx.DB, cipher *crypto.SecretCipher) *CredentialsRepository {
	return &CredentialsRepository{db: db, cipher: cipher}
}

func (r *CredentialsRepository) open(f *models.CredentialFields) error {
	password, err := r.cipher.Open(f.Password)
	if err != nil {
		return fmt.Errorf("failed to open credentials %s: %w", f.ID, err)
	}
	f.Password = password
	return nil
}

// Pool operations

// GetPoolBatch returns up to limit pooled credentials for the service type,
// the one that failed longest ago first.
func (r *CredentialsRepository) GetPoolBatch(ctx context.Context, serviceType string, limit int) ([]*models.PooledCredentials, error) {
	var creds []*models.PooledCredentials
	query := `
		SELECT id, service_type, url, username, password, credentials_type, last_failure, created_at
		FROM credentials_pool
		WHERE service_type = $1
		ORDER BY last_failure
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &creds, query, serviceType, limit); err != nil {
		return nil, err
	}
	for _, c := range creds {
		if err := r.open(&c.CredentialFields); err != nil {
			return nil, err
		}
	}
	return creds, nil
}

// GetPooled retrieves pooled credentials by ID
func (r *CredentialsRepository) GetPooled(ctx context.Context, id string) (*models.PooledCredentials, error) {
	var creds models.PooledCredentials
	query := `
		SELECT id, service_type, url, username, password, credentials_type, last_failure, created_at
		FROM credentials_pool
		WHERE id = $1`
	err := r.db.GetContext(ctx, &creds, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.open(&creds.CredentialFields); err != nil {
		return nil, err
	}
	return &creds, nil
}

// UpdatePoolLastFailure stores a new last_failure timestamp. It reports
// whether exactly one row was updated.
func (r *CredentialsRepository) UpdatePoolLastFailure(ctx context.Context, creds *models.PooledCredentials) (bool, error) {
	query := `UPDATE credentials_pool SET last_failure = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, creds.LastFailure, creds.ID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreatePooled inserts credentials into the shared pool
func (r *CredentialsRepository) CreatePooled(ctx context.Context, creds *models.PooledCredentials) error {
	sealed, err := r.cipher.Seal(creds.Password)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}
	query := `
		INSERT INTO credentials_pool (id, service_type, url, username, password, credentials_type, last_failure, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query,
		creds.ID, creds.ServiceType, creds.URL, creds.Username, sealed,
		creds.CredentialsType, creds.LastFailure, creds.CreatedAt,
	)
	return err
}

// DeletePooled removes pooled credentials. It reports whether a row was deleted.
func (r *CredentialsRepository) DeletePooled(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM credentials_pool WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// Class credential operations

// GetClassCredentials retrieves class credentials by ID
func (r *CredentialsRepository) GetClassCredentials(ctx context.Context, id string) (*models.Credentials, error) {
	var creds models.Credentials
	query := `
		SELECT id, class_id, service_type, url, username, password, credentials_type, created_at
		FROM credentials
		WHERE id = $1`
	err := r.db.GetContext(ctx, &creds, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.open(&creds.CredentialFields); err != nil {
		return nil, err
	}
	return &creds, nil
}

// ListClassCredentials returns a class's credentials for one service type
func (r *CredentialsRepository) ListClassCredentials(ctx context.Context, classID, serviceType string) ([]*models.Credentials, error) {
	var creds []*models.Credentials
	query := `
		SELECT id, class_id, service_type, url, username, password, credentials_type, created_at
		FROM credentials
		WHERE class_id = $1 AND service_type = $2
		ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &creds, query, classID, serviceType); err != nil {
		return nil, err
	}
	for _, c := range creds {
		if err := r.open(&c.CredentialFields); err != nil {
			return nil, err
		}
	}
	return creds, nil
}

// CreateClassCredentials inserts credentials owned by a class
func (r *CredentialsRepository) CreateClassCredentials(ctx context.Context, creds *models.Credentials) error {
	sealed, err := r.cipher.Seal(creds.Password)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}
	query := `
		INSERT INTO credentials (id, class_id, service_type, url, username, password, credentials_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query,
		creds.ID, creds.ClassID, creds.ServiceType, creds.URL, creds.Username, sealed,
		creds.CredentialsType, creds.CreatedAt,
	)
	return err
}

// DeleteClassCredentials removes one set of class credentials. The class id
// is part of the predicate so a class can only delete its own credentials.
func (r *CredentialsRepository) DeleteClassCredentials(ctx context.Context, classID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1 AND class_id = $2`, id, classID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// DeleteAllClassCredentials removes every set of credentials a class owns
func (r *CredentialsRepository) DeleteAllClassCredentials(ctx context.Context, classID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE class_id = $1`, classID)
	return err
}
