// Package scratch issues the keys Scratch projects use to train and classify
// against a student's project without seeing the class's service credentials.
//
// A key is unique per (user, project, class). Every write is a single upsert,
// so two concurrent first issues for the same project converge on one row and
// the key id handed out first stays valid.
package scratch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

// ErrKeyNotFound is returned when a scratch key id does not exist
var ErrKeyNotFound = errors.New("scratch key not found")

// numbersCredentialsID marks synthesized credentials for numbers projects,
// which are classified by the in-house numbers service.
const numbersCredentialsID = "NOTUSED"

// KeyStore persists scratch keys. It is implemented by
// repositories.ScratchKeyRepository.
type KeyStore interface {
	Upsert(ctx context.Context, key *models.ScratchKey) (string, error)
	Get(ctx context.Context, id string) (*models.ScratchKey, error)
	ResetByClassifier(ctx context.Context, classifierID string, projectType models.ProjectType, now time.Time) (int64, error)
	ResetByCredentials(ctx context.Context, credentialsID string, now time.Time) (int64, error)
	UpdateTimestamp(ctx context.Context, id string, now time.Time) (bool, error)
}

// ClassifierLookup finds the models trained for a project
type ClassifierLookup interface {
	ListByProject(ctx context.Context, projectID string) ([]*models.Classifier, error)
	GetNumbers(ctx context.Context, projectID string) (*models.NumbersClassifier, error)
}

// TenantLookup reads class policy
type TenantLookup interface {
	GetClassTenant(ctx context.Context, classID string) (*models.ClassTenant, error)
}

// CredentialsResolver resolves a classifier's credentials by tenant type
type CredentialsResolver interface {
	Resolve(ctx context.Context, tenant *models.ClassTenant, credentialsID string) (models.ServiceCredentials, error)
}

// Key is what a client is given for a project. Model is empty for an
// untrained key.
type Key struct {
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

// Key status codes reported to Scratch
const (
	StatusUntrained = 0
	StatusReady     = 2
)

// KeyStatus describes whether a key can classify yet
type KeyStatus struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// Issuer creates, updates and resets scratch keys
type Issuer struct {
	keys        KeyStore
	classifiers ClassifierLookup
	tenants     TenantLookup
	credentials CredentialsResolver
	clock       clockwork.Clock
}

// NewIssuer creates a scratch key issuer
func NewIssuer(keys KeyStore, classifiers ClassifierLookup, tenants TenantLookup, credentials CredentialsResolver, clock clockwork.Clock) *Issuer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Issuer{keys: keys, classifiers: classifiers, tenants: tenants, credentials: credentials, clock: clock}
}

// Issue returns the scratch key for a project, pointing it at the project's
// current model if it has one.
func (i *Issuer) Issue(ctx context.Context, project *models.Project) ([]Key, error) {
	var (
		key Key
		err error
	)
	switch project.Type {
	case models.ProjectText:
		key, err = i.issueText(ctx, project)
	case models.ProjectNumbers:
		key, err = i.issueNumbers(ctx, project)
	case models.ProjectImages, models.ProjectSounds, models.ProjectImgTfjs:
		key.ID, err = i.IssueUntrained(ctx, project)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidProjectType, project.Type)
	}
	if err != nil {
		return nil, err
	}
	return []Key{key}, nil
}

func (i *Issuer) issueText(ctx context.Context, project *models.Project) (Key, error) {
	classifiers, err := i.classifiers.ListByProject(ctx, project.ID)
	if err != nil {
		return Key{}, fmt.Errorf("failed to read project classifiers: %w", err)
	}
	if len(classifiers) == 0 {
		id, err := i.IssueUntrained(ctx, project)
		return Key{ID: id}, err
	}

	classifier := classifiers[0]
	tenant, err := i.tenants.GetClassTenant(ctx, project.ClassID)
	if err != nil {
		return Key{}, fmt.Errorf("failed to read class policy: %w", err)
	}
	creds, err := i.credentials.Resolve(ctx, tenant, classifier.CredentialsID)
	if err != nil {
		return Key{}, err
	}

	id, err := i.IssueOrUpdate(ctx, project, creds, classifier.ExternalID, classifier.Created)
	if err != nil {
		return Key{}, err
	}
	return Key{ID: id, Model: classifier.ExternalID}, nil
}

func (i *Issuer) issueNumbers(ctx context.Context, project *models.Project) (Key, error) {
	classifier, err := i.classifiers.GetNumbers(ctx, project.ID)
	if err != nil {
		return Key{}, fmt.Errorf("failed to read numbers classifier: %w", err)
	}
	if classifier == nil {
		id, err := i.IssueUntrained(ctx, project)
		return Key{ID: id}, err
	}

	id, err := i.IssueOrUpdate(ctx, project, numbersCredentials(project), project.ID, classifier.Created)
	if err != nil {
		return Key{}, err
	}
	return Key{ID: id, Model: project.ID}, nil
}

// numbersCredentials addresses the numbers service by project rather than by
// service instance.
func numbersCredentials(project *models.Project) *models.Credentials {
	return &models.Credentials{
		CredentialFields: models.CredentialFields{
			ID:              numbersCredentialsID,
			ServiceType:     models.ServiceTypeNumbers,
			URL:             fmt.Sprintf("tenantid=%s&studentid=%s&projectid=%s", project.ClassID, project.UserID, project.ID),
			Username:        project.UserID,
			Password:        project.ClassID,
			CredentialsType: models.CredentialsUnknown,
		},
		ClassID: project.ClassID,
	}
}

// IssueOrUpdate points the project's key at a trained model, creating the key
// if needed. It returns the key id.
func (i *Issuer) IssueOrUpdate(ctx context.Context, project *models.Project, creds models.ServiceCredentials, classifierID string, timestamp time.Time) (string, error) {
	fields := creds.Fields()
	key := newKey(project, timestamp)
	key.CredentialsID = nullString(fields.ID)
	key.ServiceURL = nullString(fields.URL)
	key.ServiceUsername = nullString(fields.Username)
	key.ServicePassword = nullString(fields.Password)
	key.ClassifierID = nullString(classifierID)

	id, err := i.keys.Upsert(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to store scratch key: %w", err)
	}
	return id, nil
}

// IssueUntrained creates or resets the project's key with no model
func (i *Issuer) IssueUntrained(ctx context.Context, project *models.Project) (string, error) {
	id, err := i.keys.Upsert(ctx, newKey(project, i.clock.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to store scratch key: %w", err)
	}
	return id, nil
}

func newKey(project *models.Project, updated time.Time) *models.ScratchKey {
	return &models.ScratchKey{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		ProjectName: project.Name,
		ProjectType: project.Type,
		UserID:      project.UserID,
		ClassID:     project.ClassID,
		Updated:     updated,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// ResetOnClassifierRemoval returns every key of a project type that pointed
// at a deleted classifier to the untrained state.
func (i *Issuer) ResetOnClassifierRemoval(ctx context.Context, classifierID string, projectType models.ProjectType) error {
	if _, err := i.keys.ResetByClassifier(ctx, classifierID, projectType, i.clock.Now()); err != nil {
		return fmt.Errorf("failed to reset scratch keys for classifier %s: %w", classifierID, err)
	}
	return nil
}

// ResetOnCredentialRemoval returns every key built with a set of credentials
// to the untrained state.
func (i *Issuer) ResetOnCredentialRemoval(ctx context.Context, creds models.ServiceCredentials) error {
	id := creds.Fields().ID
	if _, err := i.keys.ResetByCredentials(ctx, id, i.clock.Now()); err != nil {
		return fmt.Errorf("failed to reset scratch keys for credentials %s: %w", id, err)
	}
	return nil
}

// Lookup returns a scratch key by id
func (i *Issuer) Lookup(ctx context.Context, keyID string) (*models.ScratchKey, error) {
	key, err := i.keys.Get(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to read scratch key: %w", err)
	}
	if key == nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// Status reports whether a key has a model to classify with
func (i *Issuer) Status(ctx context.Context, keyID string) (*KeyStatus, error) {
	key, err := i.Lookup(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if !key.IsTrained() {
		return &KeyStatus{Status: StatusUntrained, Msg: "No models trained yet - only random answers can be chosen"}, nil
	}
	return &KeyStatus{Status: StatusReady, Msg: "Ready"}, nil
}

// Touch records that a key was used
func (i *Issuer) Touch(ctx context.Context, keyID string) error {
	found, err := i.keys.UpdateTimestamp(ctx, keyID, i.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to update scratch key: %w", err)
	}
	if !found {
		return ErrKeyNotFound
	}
	return nil
}
