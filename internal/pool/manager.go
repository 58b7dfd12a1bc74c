// Package pool manages the shared credentials pool used by ManagedPool
// classes, and resolves the credentials a classifier was built with.
//
// Pooled credentials carry a last_failure timestamp that doubles as a
// cooldown: a failed build pushes it forward, a classifier deletion pulls it
// back, and AcquireBatch hands out the least recently failed first. Updates
// are last-writer-wins.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/telemetry"
)

var (
	// ErrPoolEmpty is returned when no pooled credentials exist for a service type
	ErrPoolEmpty = errors.New("credentials pool is empty")
	// ErrCredentialsNotFound is returned when a credentials reference does not resolve
	ErrCredentialsNotFound = errors.New("credentials not found")
	// ErrNoCredentials is returned when a class has no credentials of its own
	ErrNoCredentials = errors.New("class has no credentials for this service")
)

// CredentialsStore is the persistence the manager needs. It is implemented by
// repositories.CredentialsRepository.
type CredentialsStore interface {
	GetPoolBatch(ctx context.Context, serviceType string, limit int) ([]*models.PooledCredentials, error)
	GetPooled(ctx context.Context, id string) (*models.PooledCredentials, error)
	UpdatePoolLastFailure(ctx context.Context, creds *models.PooledCredentials) (bool, error)
	CreatePooled(ctx context.Context, creds *models.PooledCredentials) error
	DeletePooled(ctx context.Context, id string) (bool, error)
	GetClassCredentials(ctx context.Context, id string) (*models.Credentials, error)
	ListClassCredentials(ctx context.Context, classID, serviceType string) ([]*models.Credentials, error)
	CreateClassCredentials(ctx context.Context, creds *models.Credentials) error
	DeleteClassCredentials(ctx context.Context, classID, id string) (bool, error)
}

// Manager hands out and tracks service credentials
type Manager struct {
	store CredentialsStore
	clock clockwork.Clock
	cfg   config.PoolConfig
}

// NewManager creates a pool manager
func NewManager(store CredentialsStore, cfg config.PoolConfig, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{store: store, clock: clock, cfg: cfg}
}

// AcquireBatch returns up to pool.batch_size pooled credentials, least
// recently failed first.
func (m *Manager) AcquireBatch(ctx context.Context, serviceType string) ([]*models.PooledCredentials, error) {
	batch, err := m.store.GetPoolBatch(ctx, serviceType, m.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials pool: %w", err)
	}
	if len(batch) == 0 {
		return nil, ErrPoolEmpty
	}
	return batch, nil
}

// RecordFailure pushes a pooled credential's cooldown forward after a failed
// classifier build and returns the updated credentials. Persistence failures
// are logged; the caller carries on with the next candidate either way.
func (m *Manager) RecordFailure(ctx context.Context, creds *models.PooledCredentials) *models.PooledCredentials {
	updated := *creds
	if creds.LastFailure.IsZero() {
		updated.LastFailure = m.clock.Now()
	} else {
		updated.LastFailure = creds.LastFailure.Add(m.cfg.FailureCooldown)
	}

	m.persistLastFailure(ctx, &updated, "failure")
	telemetry.PoolCredentialFailuresTotal.WithLabelValues(creds.ServiceType).Inc()
	return &updated
}

// RecordRecoveryHint pulls a pooled credential's cooldown back after one of
// its classifiers was deleted, never earlier than now minus the recovery
// window.
func (m *Manager) RecordRecoveryHint(ctx context.Context, creds *models.PooledCredentials) *models.PooledCredentials {
	floor := m.clock.Now().Add(-m.cfg.RecoveryWindow)

	updated := *creds
	if creds.LastFailure.IsZero() {
		updated.LastFailure = floor
	} else {
		updated.LastFailure = creds.LastFailure.Add(-m.cfg.RecoveryWindow)
		if updated.LastFailure.Before(floor) {
			updated.LastFailure = floor
		}
	}

	m.persistLastFailure(ctx, &updated, "recovery")
	telemetry.PoolRecoveryHintsTotal.WithLabelValues(creds.ServiceType).Inc()
	return &updated
}

func (m *Manager) persistLastFailure(ctx context.Context, creds *models.PooledCredentials, reason string) {
	ok, err := m.store.UpdatePoolLastFailure(ctx, creds)
	if err != nil {
		slog.Error("pool: failed to store last failure", "credentials_id", creds.ID, "reason", reason, "error", err)
		return
	}
	if !ok {
		slog.Warn("pool: credentials disappeared before last failure was stored", "credentials_id", creds.ID, "reason", reason)
	}
}

// Resolve looks up credentials in the table the tenant type points at.
func (m *Manager) Resolve(ctx context.Context, tenant *models.ClassTenant, credentialsID string) (models.ServiceCredentials, error) {
	ref, err := tenant.CredentialsRef(credentialsID)
	if err != nil {
		return nil, err
	}
	return m.ResolveRef(ctx, ref)
}

// ResolveRef looks up credentials by reference
func (m *Manager) ResolveRef(ctx context.Context, ref models.CredentialsRef) (models.ServiceCredentials, error) {
	switch ref.Source {
	case models.SourcePool:
		creds, err := m.store.GetPooled(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read pooled credentials: %w", err)
		}
		if creds == nil {
			return nil, fmt.Errorf("%w: pooled credentials %s", ErrCredentialsNotFound, ref.ID)
		}
		return creds, nil
	case models.SourceClass:
		creds, err := m.store.GetClassCredentials(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read class credentials: %w", err)
		}
		if creds == nil {
			return nil, fmt.Errorf("%w: class credentials %s", ErrCredentialsNotFound, ref.ID)
		}
		return creds, nil
	default:
		return nil, fmt.Errorf("unknown credentials source %v", ref.Source)
	}
}

// ClassCredentials returns the credentials a class has supplied itself
func (m *Manager) ClassCredentials(ctx context.Context, classID, serviceType string) ([]*models.Credentials, error) {
	creds, err := m.store.ListClassCredentials(ctx, classID, serviceType)
	if err != nil {
		return nil, fmt.Errorf("failed to read class credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	return creds, nil
}

// Admin operations

// AddPooled adds credentials to the shared pool. New credentials are stamped
// as last failing now, so they are handed out after any that failed earlier.
func (m *Manager) AddPooled(ctx context.Context, creds *models.PooledCredentials) error {
	now := m.clock.Now()
	creds.CreatedAt = now
	creds.LastFailure = now
	if creds.CredentialsType == "" {
		creds.CredentialsType = models.DetectCredentialsType(creds.Username, creds.Password)
	}
	return m.store.CreatePooled(ctx, creds)
}

// RetirePooled removes credentials from the pool. It is the only way pooled
// credentials are ever deleted.
func (m *Manager) RetirePooled(ctx context.Context, id string) error {
	deleted, err := m.store.DeletePooled(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to retire pooled credentials: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: pooled credentials %s", ErrCredentialsNotFound, id)
	}
	return nil
}

// AddClassCredentials stores credentials owned by a class
func (m *Manager) AddClassCredentials(ctx context.Context, creds *models.Credentials) error {
	creds.CreatedAt = m.clock.Now()
	if creds.CredentialsType == "" {
		creds.CredentialsType = models.DetectCredentialsType(creds.Username, creds.Password)
	}
	return m.store.CreateClassCredentials(ctx, creds)
}

// DeleteClassCredentials removes credentials owned by a class
func (m *Manager) DeleteClassCredentials(ctx context.Context, classID, id string) error {
	deleted, err := m.store.DeleteClassCredentials(ctx, classID, id)
	if err != nil {
		return fmt.Errorf("failed to delete class credentials: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: class credentials %s", ErrCredentialsNotFound, id)
	}
	return nil
}
