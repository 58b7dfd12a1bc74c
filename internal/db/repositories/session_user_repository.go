// session_user_repository.go implements SessionUserRepository for the
// temporary users of the shared session-users class.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SessionUserRepository handles database operations for temporary users
type SessionUserRepository struct {
	db *sqlx.DB
}

// NewSessionUserRepository creates a new session user repository
func NewSessionUserRepository(db *sqlx.DB) *SessionUserRepository {
	return &SessionUserRepository{db: db}
}

// Count returns the number of live session users, expired or not
func (r *SessionUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM session_users`); err != nil {
		return 0, err
	}
	return n, nil
}

// Insert stores a new session user
func (r *SessionUserRepository) Insert(ctx context.Context, user *models.TemporaryUser) error {
	query := `INSERT INTO session_users (id, token, session_expiry) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Token, user.SessionExpiry)
	return err
}

// Get retrieves a session user by ID
func (r *SessionUserRepository) Get(ctx context.Context, id string) (*models.TemporaryUser, error) {
	var user models.TemporaryUser
	query := `SELECT id, token, session_expiry FROM session_users WHERE id = $1`
	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListExpired returns up to limit users whose session ended before now
func (r *SessionUserRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.TemporaryUser, error) {
	var users []*models.TemporaryUser
	query := `
		SELECT id, token, session_expiry
		FROM session_users
		WHERE session_expiry < $1
		ORDER BY session_expiry
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &users, query, now, limit); err != nil {
		return nil, err
	}
	return users, nil
}

// Delete removes one session user
func (r *SessionUserRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM session_users WHERE id = $1`, id)
	return err
}

// BulkDelete removes several session users in one statement
func (r *SessionUserRepository) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM session_users WHERE id = ANY($1)`, pq.Array(ids))
	return err
}
