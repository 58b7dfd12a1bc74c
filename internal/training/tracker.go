package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/pool"
	"github.com/IBM/taxinomitis-sub001/internal/telemetry"
)

// ignoredRemoteClassifiers are created automatically in new service
// instances and are never tracked locally.
var ignoredRemoteClassifiers = []string{
	"Car Dashboard - Sample",
	"Customer Service - Sample",
}

// ClassifierStore is the classifier bookkeeping used by the tracker. It is
// implemented by repositories.ClassifierRepository.
type ClassifierStore interface {
	Create(ctx context.Context, c *models.Classifier) error
	ListByProject(ctx context.Context, projectID string) ([]*models.Classifier, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Classifier, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.Classifier, error)
	ListByClass(ctx context.Context, classID string) ([]*models.Classifier, error)
	ListByCredentials(ctx context.Context, credentialsID string) ([]*models.Classifier, error)
	UpdateExpiry(ctx context.Context, id string, expiry time.Time) error
	UpdateTraining(ctx context.Context, c *models.Classifier) error
	Delete(ctx context.Context, id string) error
	UpsertNumbers(ctx context.Context, c *models.NumbersClassifier) error
	GetNumbers(ctx context.Context, projectID string) (*models.NumbersClassifier, error)
	DeleteNumbers(ctx context.Context, projectID string) error
}

// TenantStore reads and updates class policy
type TenantStore interface {
	GetClassTenant(ctx context.Context, classID string) (*models.ClassTenant, error)
	UpsertTextClassifierExpiry(ctx context.Context, tenant *models.ClassTenant) error
}

// CredentialsPool hands out service credentials. It is implemented by pool.Manager.
type CredentialsPool interface {
	AcquireBatch(ctx context.Context, serviceType string) ([]*models.PooledCredentials, error)
	RecordFailure(ctx context.Context, creds *models.PooledCredentials) *models.PooledCredentials
	RecordRecoveryHint(ctx context.Context, creds *models.PooledCredentials) *models.PooledCredentials
	Resolve(ctx context.Context, tenant *models.ClassTenant, credentialsID string) (models.ServiceCredentials, error)
	ClassCredentials(ctx context.Context, classID, serviceType string) ([]*models.Credentials, error)
}

// ScratchKeys keeps scratch keys pointing at the right classifier. It is
// implemented by scratch.Issuer.
type ScratchKeys interface {
	IssueOrUpdate(ctx context.Context, project *models.Project, creds models.ServiceCredentials, classifierID string, timestamp time.Time) (string, error)
	ResetOnClassifierRemoval(ctx context.Context, classifierID string, projectType models.ProjectType) error
	ResetOnCredentialRemoval(ctx context.Context, creds models.ServiceCredentials) error
}

// UnknownClassifier is a remote classifier with no local row
type UnknownClassifier struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	CredentialsID string `json:"credentialsid"`
}

// ClassifierStatus is a local classifier with the state reported by the
// remote service.
type ClassifierStatus struct {
	*models.Classifier
	Status  string    `json:"status"`
	Updated time.Time `json:"updated"`
}

// Statuses reported when the remote state cannot be read
const (
	StatusUnavailable = "Unavailable"
	StatusNonExistent = "Non Existent"
)

// Tracker ties text classifiers to the credentials they were built with and
// keeps local rows, remote workspaces and scratch keys consistent.
type Tracker struct {
	service     Service
	pool        CredentialsPool
	classifiers ClassifierStore
	tenants     TenantStore
	keys        ScratchKeys
	clock       clockwork.Clock

	// shuffle spreads class credential usage across the set
	shuffle func([]models.ServiceCredentials)
}

// NewTracker creates a classifier lifecycle tracker
func NewTracker(service Service, credentials CredentialsPool, classifiers ClassifierStore, tenants TenantStore, keys ScratchKeys, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		service:     service,
		pool:        credentials,
		classifiers: classifiers,
		tenants:     tenants,
		keys:        keys,
		clock:       clock,
		shuffle: func(c []models.ServiceCredentials) {
			rand.Shuffle(len(c), func(i, j int) { c[i], c[j] = c[j], c[i] })
		},
	}
}

// Train builds the text classifier for a project, or retrains the existing
// one in place.
func (t *Tracker) Train(ctx context.Context, project *models.Project, spec *TrainingSpec) (*models.Classifier, error) {
	if project.Type != models.ProjectText {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProject, project.Type)
	}

	tenant, err := t.tenants.GetClassTenant(ctx, project.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to read class policy: %w", err)
	}

	existing, err := t.classifiers.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read project classifiers: %w", err)
	}
	if len(existing) > 0 {
		return t.retrain(ctx, tenant, project, existing[0], spec)
	}

	candidates, err := t.trainingCandidates(ctx, tenant)
	if err != nil {
		if errors.Is(err, pool.ErrPoolEmpty) {
			telemetry.ClassifierTrainingTotal.WithLabelValues("pool_exhausted").Inc()
			return nil, ErrPoolExhausted
		}
		return nil, err
	}
	return t.create(ctx, tenant, project, candidates, spec)
}

// trainingCandidates lists the credentials to try, in order. The pool is
// kept in least-recently-failed order so fewer service instances end up in
// use; class credentials are shuffled.
func (t *Tracker) trainingCandidates(ctx context.Context, tenant *models.ClassTenant) ([]models.ServiceCredentials, error) {
	var candidates []models.ServiceCredentials
	switch tenant.TenantType {
	case models.ManagedPool:
		batch, err := t.pool.AcquireBatch(ctx, models.ServiceTypeText)
		if err != nil {
			return nil, err
		}
		for _, c := range batch {
			candidates = append(candidates, c)
		}
	case models.Managed, models.UnManaged:
		creds, err := t.pool.ClassCredentials(ctx, tenant.ID, models.ServiceTypeText)
		if err != nil {
			return nil, err
		}
		for _, c := range creds {
			candidates = append(candidates, c)
		}
		t.shuffle(candidates)
	default:
		return nil, fmt.Errorf("unknown tenant type %v", tenant.TenantType)
	}
	return candidates, nil
}

func (t *Tracker) create(ctx context.Context, tenant *models.ClassTenant, project *models.Project, candidates []models.ServiceCredentials, spec *TrainingSpec) (*models.Classifier, error) {
	exhausted, exhaustedOutcome := ErrInsufficientKeys, "insufficient_keys"
	if tenant.TenantType == models.ManagedPool {
		exhausted, exhaustedOutcome = ErrPoolExhausted, "pool_exhausted"
	}
	finalErr, outcome := exhausted, exhaustedOutcome

	for _, creds := range candidates {
		remote, err := t.service.CreateClassifier(ctx, creds, spec)
		if err != nil {
			if pooled, ok := creds.(*models.PooledCredentials); ok {
				t.pool.RecordFailure(ctx, pooled)
			}
			switch {
			case errors.Is(err, ErrWorkspaceLimit):
				finalErr, outcome = exhausted, exhaustedOutcome
				continue
			case errors.Is(err, ErrRateLimited):
				finalErr, outcome = ErrKeysRateLimited, "rate_limited"
				continue
			case errors.Is(err, ErrBadCredentials):
				slog.Warn("training: credentials rejected", "project_id", project.ID, "credentials_id", creds.Fields().ID, "error", err)
				telemetry.ClassifierTrainingTotal.WithLabelValues("bad_credentials").Inc()
				return nil, err
			default:
				slog.Error("training: unexpected failure creating classifier",
					"project_id", project.ID, "class_id", project.ClassID, "credentials_id", creds.Fields().ID, "error", err)
				telemetry.ClassifierTrainingTotal.WithLabelValues("error").Inc()
				return nil, err
			}
		}

		classifier := t.newClassifier(tenant, project, creds, remote, spec)
		if err := t.classifiers.Create(ctx, classifier); err != nil {
			return nil, fmt.Errorf("failed to store classifier: %w", err)
		}
		if _, err := t.keys.IssueOrUpdate(ctx, project, creds, classifier.ExternalID, classifier.Created); err != nil {
			return nil, fmt.Errorf("failed to update scratch key: %w", err)
		}
		telemetry.ClassifierTrainingTotal.WithLabelValues("created").Inc()
		return classifier, nil
	}

	if tenant.TenantType == models.ManagedPool || finalErr == ErrKeysRateLimited {
		slog.Warn("training: no credentials could build the classifier",
			"project_id", project.ID, "class_id", project.ClassID, "tenant_type", tenant.TenantType, "reason", finalErr)
	}
	telemetry.ClassifierTrainingTotal.WithLabelValues(outcome).Inc()
	return nil, finalErr
}

func (t *Tracker) retrain(ctx context.Context, tenant *models.ClassTenant, project *models.Project, existing *models.Classifier, spec *TrainingSpec) (*models.Classifier, error) {
	creds, err := t.pool.Resolve(ctx, tenant, existing.CredentialsID)
	if err != nil {
		return nil, err
	}

	remote, err := t.service.UpdateClassifier(ctx, creds, existing.ExternalID, spec)
	if err != nil {
		if pooled, ok := creds.(*models.PooledCredentials); ok {
			t.pool.RecordFailure(ctx, pooled)
		}
		switch {
		case errors.Is(err, ErrRateLimited):
			telemetry.ClassifierTrainingTotal.WithLabelValues("rate_limited").Inc()
			return nil, ErrKeysRateLimited
		case errors.Is(err, ErrNotFound):
			// removed outside this service; drop the row so the next attempt creates a new one
			if derr := t.classifiers.Delete(ctx, existing.ID); derr != nil {
				slog.Error("training: failed to delete classifier missing from remote service", "classifier_id", existing.ID, "error", derr)
			}
			telemetry.ClassifierTrainingTotal.WithLabelValues("error").Inc()
			return nil, ErrModelNotFound
		default:
			slog.Error("training: unexpected failure retraining classifier", "project_id", project.ID, "classifier_id", existing.ID, "error", err)
			telemetry.ClassifierTrainingTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	updated := t.newClassifier(tenant, project, creds, remote, spec)
	updated.ID = existing.ID
	updated.ExternalID = existing.ExternalID
	updated.URL = existing.URL
	updated.Created = existing.Created
	if err := t.classifiers.UpdateTraining(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update classifier: %w", err)
	}

	if _, err := t.keys.IssueOrUpdate(ctx, project, creds, updated.ExternalID, updated.Updated); err != nil {
		return nil, fmt.Errorf("failed to update scratch key: %w", err)
	}
	telemetry.ClassifierTrainingTotal.WithLabelValues("updated").Inc()
	return updated, nil
}

// newClassifier builds the local row for a trained workspace. The service's
// timestamps are used when it reports them.
func (t *Tracker) newClassifier(tenant *models.ClassTenant, project *models.Project, creds models.ServiceCredentials, remote *RemoteClassifier, spec *TrainingSpec) *models.Classifier {
	now := t.clock.Now()
	created := remote.Created
	if created.IsZero() {
		created = now
	}
	updated := remote.Updated
	if updated.IsZero() {
		updated = now
	}
	name := remote.Name
	if name == "" {
		name = spec.Name
	}
	language := remote.Language
	if language == "" {
		language = newWorkspaceRequest(spec).Language
	}

	return &models.Classifier{
		ID:            uuid.NewString(),
		CredentialsID: creds.Fields().ID,
		ProjectID:     project.ID,
		UserID:        project.UserID,
		ClassID:       project.ClassID,
		ServiceType:   models.ServiceTypeText,
		ExternalID:    remote.WorkspaceID,
		URL:           WorkspaceURL(creds, remote.WorkspaceID),
		Name:          name,
		Language:      language,
		Created:       created,
		Updated:       updated,
		Expiry:        models.ExpiryFrom(updated, tenant.TextClassifierExpiry),
	}
}

// RefreshExpiry recomputes a classifier's expiry from its last training
// time and the tenant's current policy.
func (t *Tracker) RefreshExpiry(ctx context.Context, classifier *models.Classifier, tenant *models.ClassTenant) error {
	expiry := models.ExpiryFrom(classifier.LastTrained(), tenant.TextClassifierExpiry)
	if err := t.classifiers.UpdateExpiry(ctx, classifier.ID, expiry); err != nil {
		return fmt.Errorf("failed to update classifier expiry: %w", err)
	}
	classifier.Expiry = expiry
	return nil
}

// RefreshTenantExpiries recomputes the expiry of every text classifier in a class
func (t *Tracker) RefreshTenantExpiries(ctx context.Context, classID string) error {
	tenant, err := t.tenants.GetClassTenant(ctx, classID)
	if err != nil {
		return fmt.Errorf("failed to read class policy: %w", err)
	}
	classifiers, err := t.classifiers.ListByClass(ctx, classID)
	if err != nil {
		return fmt.Errorf("failed to list class classifiers: %w", err)
	}
	for _, c := range classifiers {
		if err := t.RefreshExpiry(ctx, c, tenant); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTenantPolicy changes how long a class keeps text classifiers and
// applies the new expiry to the ones it already has.
func (t *Tracker) UpdateTenantPolicy(ctx context.Context, classID string, hours int) (*models.ClassTenant, error) {
	if !models.ValidTextClassifierExpiry(hours) {
		return nil, ErrInvalidExpiry
	}
	tenant, err := t.tenants.GetClassTenant(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to read class policy: %w", err)
	}
	tenant.TextClassifierExpiry = hours
	if err := t.tenants.UpsertTextClassifierExpiry(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to store class policy: %w", err)
	}
	if err := t.RefreshTenantExpiries(ctx, classID); err != nil {
		return nil, err
	}
	return tenant, nil
}

// ReconcileAgainstRemote lists the classifiers that exist on the remote
// service under the credentials available to a class but have no local row.
func (t *Tracker) ReconcileAgainstRemote(ctx context.Context, tenant *models.ClassTenant) ([]UnknownClassifier, error) {
	candidates, err := t.trainingCandidates(ctx, tenant)
	if errors.Is(err, pool.ErrPoolEmpty) || errors.Is(err, pool.ErrNoCredentials) {
		return []UnknownClassifier{}, nil
	}
	if err != nil {
		return nil, err
	}

	remote := make([][]RemoteClassifier, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, creds := range candidates {
		g.Go(func() error {
			list, err := t.service.ListClassifiers(gctx, creds)
			if err != nil {
				return fmt.Errorf("failed to list classifiers for credentials %s: %w", creds.Fields().ID, err)
			}
			remote[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	unknown := []UnknownClassifier{}
	for i, list := range remote {
		for _, rc := range list {
			if slices.Contains(ignoredRemoteClassifiers, rc.Name) {
				continue
			}
			local, err := t.classifiers.GetByExternalID(ctx, rc.WorkspaceID)
			if err != nil {
				return nil, fmt.Errorf("failed to look up classifier %s: %w", rc.WorkspaceID, err)
			}
			if local == nil {
				unknown = append(unknown, UnknownClassifier{
					ID:            rc.WorkspaceID,
					Name:          rc.Name,
					Type:          models.ServiceTypeText,
					CredentialsID: candidates[i].Fields().ID,
				})
			}
		}
	}
	return unknown, nil
}

// DeleteUnknown removes a remote classifier that has no local row
func (t *Tracker) DeleteUnknown(ctx context.Context, tenant *models.ClassTenant, credentialsID, externalID string) error {
	creds, err := t.pool.Resolve(ctx, tenant, credentialsID)
	if err != nil {
		return err
	}
	return t.service.DeleteClassifier(ctx, creds, externalID)
}

// Statuses asks the remote service for the state of a project's classifiers
func (t *Tracker) Statuses(ctx context.Context, tenant *models.ClassTenant, projectID string) ([]ClassifierStatus, error) {
	classifiers, err := t.classifiers.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read project classifiers: %w", err)
	}

	statuses := make([]ClassifierStatus, len(classifiers))
	for i, c := range classifiers {
		statuses[i] = ClassifierStatus{Classifier: c, Status: StatusUnavailable}
		creds, err := t.pool.Resolve(ctx, tenant, c.CredentialsID)
		if err != nil {
			slog.Error("training: credentials for classifier are missing", "classifier_id", c.ID, "error", err)
			continue
		}
		remote, err := t.service.GetClassifier(ctx, creds, c.ExternalID)
		if err != nil {
			slog.Warn("training: failed to get classifier status", "classifier_id", c.ID, "error", err)
			statuses[i].Status = StatusNonExistent
			continue
		}
		statuses[i].Status = remote.Status
		statuses[i].Updated = remote.Updated
	}
	return statuses, nil
}

// SweepExpired returns the text classifiers past their expiry. It does not
// delete them.
func (t *Tracker) SweepExpired(ctx context.Context) ([]*models.Classifier, error) {
	expired, err := t.classifiers.ListExpired(ctx, t.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired classifiers: %w", err)
	}
	return expired, nil
}

// DeleteExpired deletes every expired text classifier and returns how many
// were removed. A classifier that cannot be deleted is logged and skipped.
func (t *Tracker) DeleteExpired(ctx context.Context) (int, error) {
	expired, err := t.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, c := range expired {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		tenant, err := t.tenants.GetClassTenant(ctx, c.ClassID)
		if err != nil {
			slog.Error("training: failed to read policy for expired classifier", "classifier_id", c.ID, "class_id", c.ClassID, "error", err)
			continue
		}
		if err := t.Delete(ctx, tenant, c); err != nil {
			slog.Error("training: failed to delete expired classifier", "classifier_id", c.ID, "error", err)
			continue
		}
		deleted++
	}
	telemetry.ClassifiersExpiredTotal.Add(float64(deleted))
	return deleted, nil
}

// Delete removes a classifier from the remote service, then locally, then
// resets the scratch keys that pointed at it. A remote failure is logged and
// does not stop the local cleanup.
func (t *Tracker) Delete(ctx context.Context, tenant *models.ClassTenant, classifier *models.Classifier) error {
	creds, err := t.pool.Resolve(ctx, tenant, classifier.CredentialsID)
	if err != nil {
		slog.Error("training: could not find credentials to delete remote classifier",
			"classifier_id", classifier.ID, "credentials_id", classifier.CredentialsID, "error", err)
	} else if err := t.service.DeleteClassifier(ctx, creds, classifier.ExternalID); err != nil {
		slog.Error("training: unable to delete remote classifier", "classifier_id", classifier.ID, "external_id", classifier.ExternalID, "error", err)
	}
	return t.forget(ctx, classifier, creds)
}

// DeleteStrict is Delete for callers that are about to remove the
// credentials: a remote failure is returned and the local row is kept, so the
// classifier can still be reached by a later attempt. A classifier whose
// credentials are already gone is cleaned up locally.
func (t *Tracker) DeleteStrict(ctx context.Context, tenant *models.ClassTenant, classifier *models.Classifier) error {
	creds, err := t.pool.Resolve(ctx, tenant, classifier.CredentialsID)
	switch {
	case errors.Is(err, pool.ErrCredentialsNotFound):
		slog.Warn("training: credentials for classifier already removed",
			"classifier_id", classifier.ID, "credentials_id", classifier.CredentialsID)
		creds = nil
	case err != nil:
		return fmt.Errorf("failed to resolve classifier credentials: %w", err)
	default:
		if err := t.service.DeleteClassifier(ctx, creds, classifier.ExternalID); err != nil {
			return fmt.Errorf("failed to delete remote classifier %s: %w", classifier.ExternalID, err)
		}
	}
	return t.forget(ctx, classifier, creds)
}

// forget removes the local record of a classifier that is gone remotely
func (t *Tracker) forget(ctx context.Context, classifier *models.Classifier, creds models.ServiceCredentials) error {
	if err := t.classifiers.Delete(ctx, classifier.ID); err != nil {
		return fmt.Errorf("failed to delete classifier: %w", err)
	}
	if err := t.keys.ResetOnClassifierRemoval(ctx, classifier.ExternalID, models.ProjectText); err != nil {
		return fmt.Errorf("failed to reset scratch keys: %w", err)
	}

	if pooled, ok := creds.(*models.PooledCredentials); ok {
		t.pool.RecordRecoveryHint(ctx, pooled)
	}
	return nil
}

// DeleteForCredentials deletes every classifier built with a set of class
// credentials, ahead of the credentials being removed.
func (t *Tracker) DeleteForCredentials(ctx context.Context, creds models.ServiceCredentials) error {
	ref := creds.Ref()
	classifiers, err := t.classifiers.ListByCredentials(ctx, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to list classifiers for credentials: %w", err)
	}
	for _, c := range classifiers {
		if err := t.service.DeleteClassifier(ctx, creds, c.ExternalID); err != nil {
			slog.Error("training: unable to delete remote classifier", "classifier_id", c.ID, "credentials_id", ref.ID, "error", err)
		}
		if err := t.classifiers.Delete(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to delete classifier: %w", err)
		}
	}
	if err := t.keys.ResetOnCredentialRemoval(ctx, creds); err != nil {
		return fmt.Errorf("failed to reset scratch keys: %w", err)
	}
	return nil
}

// DeleteProjectClassifiers removes the remote models of a project that is
// being deleted. Failures are logged so the rest of the cascade can continue.
func (t *Tracker) DeleteProjectClassifiers(ctx context.Context, tenant *models.ClassTenant, project *models.Project) {
	switch project.Type {
	case models.ProjectText:
		classifiers, err := t.classifiers.ListByProject(ctx, project.ID)
		if err != nil {
			slog.Error("training: failed to list classifiers for deleted project", "project_id", project.ID, "error", err)
			return
		}
		for _, c := range classifiers {
			if err := t.Delete(ctx, tenant, c); err != nil {
				slog.Error("training: failed to delete classifier for deleted project", "project_id", project.ID, "classifier_id", c.ID, "error", err)
			}
		}
	case models.ProjectNumbers, models.ProjectImages, models.ProjectSounds, models.ProjectImgTfjs:
		// no remote text classifiers; local rows go with the project
	}
}

// RecordNumbersClassifier stores the state of a numbers model trained by the
// in-house numbers service.
func (t *Tracker) RecordNumbersClassifier(ctx context.Context, project *models.Project, status models.NumbersClassifierStatus) (*models.NumbersClassifier, error) {
	if project.Type != models.ProjectNumbers {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProject, project.Type)
	}
	nc := &models.NumbersClassifier{
		ProjectID: project.ID,
		UserID:    project.UserID,
		ClassID:   project.ClassID,
		Created:   t.clock.Now(),
		Status:    status,
	}
	if err := t.classifiers.UpsertNumbers(ctx, nc); err != nil {
		return nil, fmt.Errorf("failed to store numbers classifier: %w", err)
	}
	return nc, nil
}

// NumbersClassifier returns the numbers model recorded for a project, or nil
func (t *Tracker) NumbersClassifier(ctx context.Context, project *models.Project) (*models.NumbersClassifier, error) {
	nc, err := t.classifiers.GetNumbers(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read numbers classifier: %w", err)
	}
	return nc, nil
}

// DeleteNumbersClassifier forgets a project's numbers model and resets the
// scratch keys that pointed at it. Numbers keys use the project id as their
// classifier id.
func (t *Tracker) DeleteNumbersClassifier(ctx context.Context, project *models.Project) error {
	if project.Type != models.ProjectNumbers {
		return fmt.Errorf("%w: %s", ErrUnsupportedProject, project.Type)
	}
	if err := t.classifiers.DeleteNumbers(ctx, project.ID); err != nil {
		return fmt.Errorf("failed to delete numbers classifier: %w", err)
	}
	if err := t.keys.ResetOnClassifierRemoval(ctx, project.ID, models.ProjectNumbers); err != nil {
		return fmt.Errorf("failed to reset scratch keys: %w", err)
	}
	return nil
}
