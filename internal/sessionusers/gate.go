// Package sessionusers runs the "try it now" session user class: temporary
// users created without registration, capped per origin, and removed when
// their session lapses.
package sessionusers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/telemetry"
)

// ErrClassFull is returned when no more session users can be created
var ErrClassFull = errors.New("Class full")

// defaultBucket groups every origin without a ceiling of its own
const defaultBucket = ""

// UserStore persists session users. It is implemented by
// repositories.SessionUserRepository.
type UserStore interface {
	Count(ctx context.Context) (int, error)
	Insert(ctx context.Context, user *models.TemporaryUser) error
	Get(ctx context.Context, id string) (*models.TemporaryUser, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.TemporaryUser, error)
	Delete(ctx context.Context, id string) error
	BulkDelete(ctx context.Context, ids []string) error
}

// UserResources removes everything a user owns in a class
type UserResources interface {
	DeleteUser(ctx context.Context, classID, userID string) error
}

// JobQueue queues object store cleanup
type JobQueue interface {
	EnqueueDeleteUser(ctx context.Context, classID, userID string) (*models.PendingJob, error)
}

// Gate decides whether a session user may be created and cleans them up
type Gate struct {
	users     UserStore
	resources UserResources
	jobs      JobQueue
	cache     *FullCache
	cfg       config.SessionUsersConfig
	clock     clockwork.Clock
}

// NewGate creates a session capacity gate
func NewGate(users UserStore, resources UserResources, jobs JobQueue, cache *FullCache, cfg config.SessionUsersConfig, clock clockwork.Clock) *Gate {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cache == nil {
		cache = NewFullCache(clock, cfg.CheckWindow)
	}
	return &Gate{users: users, resources: resources, jobs: jobs, cache: cache, cfg: cfg, clock: clock}
}

// bucket maps a request origin onto the ceiling that applies to it
func (g *Gate) bucket(origin string) string {
	for configured := range g.cfg.OriginLimits {
		if strings.EqualFold(configured, origin) {
			return strings.ToUpper(configured)
		}
	}
	return defaultBucket
}

func bucketLabel(bucket string) string {
	if bucket == defaultBucket {
		return "other"
	}
	return bucket
}

// CreateSessionUser creates a temporary user for a request from origin (a
// country code, possibly empty).
func (g *Gate) CreateSessionUser(ctx context.Context, origin string) (*models.TemporaryUser, error) {
	bucket := g.bucket(origin)
	if g.cache.IsFull(bucket) {
		telemetry.SessionUsersClassFullTotal.WithLabelValues(bucketLabel(bucket), "cache").Inc()
		return nil, ErrClassFull
	}

	count, err := g.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count session users: %w", err)
	}
	if count >= g.cfg.OriginLimit(bucket) {
		g.cache.MarkFull(bucket)
		telemetry.SessionUsersClassFullTotal.WithLabelValues(bucketLabel(bucket), "store").Inc()
		slog.Warn("session users: class full", "origin", origin, "count", count)
		return nil, ErrClassFull
	}

	user := &models.TemporaryUser{
		ID:            uuid.NewString(),
		Token:         uuid.NewString(),
		SessionExpiry: g.clock.Now().Add(g.cfg.Lifespan),
	}
	if err := g.users.Insert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to store session user: %w", err)
	}
	telemetry.SessionUsersCreatedTotal.Inc()
	return user, nil
}

// CheckToken reports whether token is the current token of a live session
// user. Unknown users, wrong tokens and lapsed sessions all return false.
func (g *Gate) CheckToken(ctx context.Context, id, token string) bool {
	user, err := g.users.Get(ctx, id)
	if err != nil {
		slog.Error("session users: failed to read user", "user_id", id, "error", err)
		return false
	}
	if user == nil {
		return false
	}
	tokenMatches := subtle.ConstantTimeCompare([]byte(user.Token), []byte(token)) == 1
	return tokenMatches && !user.Expired(g.clock.Now())
}

// DeleteSessionUser removes a session user and everything they created
func (g *Gate) DeleteSessionUser(ctx context.Context, user *models.TemporaryUser) error {
	if err := g.deleteResources(ctx, user); err != nil {
		return err
	}
	if err := g.users.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to delete session user: %w", err)
	}
	return nil
}

func (g *Gate) deleteResources(ctx context.Context, user *models.TemporaryUser) error {
	if err := g.resources.DeleteUser(ctx, models.SessionUsersClass, user.ID); err != nil {
		return fmt.Errorf("failed to delete resources for session user %s: %w", user.ID, err)
	}
	if _, err := g.jobs.EnqueueDeleteUser(ctx, models.SessionUsersClass, user.ID); err != nil {
		return fmt.Errorf("failed to queue object cleanup for session user %s: %w", user.ID, err)
	}
	return nil
}

// CleanupExpired removes lapsed session users in batches until none are
// left, returning how many were removed.
func (g *Gate) CleanupExpired(ctx context.Context) (int, error) {
	batchSize := g.cfg.CleanupBatch
	if batchSize <= 0 {
		batchSize = 50
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		expired, err := g.users.ListExpired(ctx, g.clock.Now(), batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to list expired session users: %w", err)
		}
		if len(expired) == 0 {
			return total, nil
		}
		slog.Info("session users: deleting expired users", "count", len(expired))

		ids := make([]string, 0, len(expired))
		for _, user := range expired {
			if err := g.deleteResources(ctx, user); err != nil {
				return total, err
			}
			ids = append(ids, user.ID)
		}
		if err := g.users.BulkDelete(ctx, ids); err != nil {
			return total, fmt.Errorf("failed to delete expired session users: %w", err)
		}
		total += len(ids)
		telemetry.SessionUsersExpiredTotal.Add(float64(len(ids)))
	}
}
