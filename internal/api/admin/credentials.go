// Package admin implements the endpoints that manage the ML service
// credentials classes train with: credentials a class supplies itself and
// the shared pool maintained by site administrators.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/pool"
	"github.com/IBM/taxinomitis-sub001/internal/training"
)

// Default service endpoints by credentials type
const (
	legacyServiceURL = "https://gateway.watsonplatform.net/conversation/api"
	iamServiceURL    = "https://gateway-wdc.watsonplatform.net/assistant/api"
)

// Accepted credential shapes
const (
	legacyUsernameLength = 36
	legacyPasswordLength = 12
	apiKeyLength         = 44
)

// CredentialsManager stores and removes credentials. It is implemented by
// pool.Manager.
type CredentialsManager interface {
	ResolveRef(ctx context.Context, ref models.CredentialsRef) (models.ServiceCredentials, error)
	ClassCredentials(ctx context.Context, classID, serviceType string) ([]*models.Credentials, error)
	AddClassCredentials(ctx context.Context, creds *models.Credentials) error
	DeleteClassCredentials(ctx context.Context, classID, id string) error
	AddPooled(ctx context.Context, creds *models.PooledCredentials) error
	RetirePooled(ctx context.Context, id string) error
}

// ClassifierCleaner removes the classifiers built with credentials that are
// about to be deleted. It is implemented by training.Tracker.
type ClassifierCleaner interface {
	DeleteForCredentials(ctx context.Context, creds models.ServiceCredentials) error
}

// CredentialsVerifier checks that the remote service accepts credentials. It
// is implemented by training.Client.
type CredentialsVerifier interface {
	ListClassifiers(ctx context.Context, creds models.ServiceCredentials) ([]training.RemoteClassifier, error)
}

// TenantLookup reads class policy
type TenantLookup interface {
	GetClassTenant(ctx context.Context, classID string) (*models.ClassTenant, error)
}

// CredentialsHandlers handles class and pool credential endpoints
type CredentialsHandlers struct {
	manager  CredentialsManager
	cleaner  ClassifierCleaner
	verifier CredentialsVerifier
	tenants  TenantLookup
}

// NewCredentialsHandlers creates credential handlers
func NewCredentialsHandlers(manager CredentialsManager, cleaner ClassifierCleaner, verifier CredentialsVerifier, tenants TenantLookup) *CredentialsHandlers {
	return &CredentialsHandlers{
		manager:  manager,
		cleaner:  cleaner,
		verifier: verifier,
		tenants:  tenants,
	}
}

// credentialsRequest is either a legacy username/password pair or an IAM api key
type credentialsRequest struct {
	ServiceType string `json:"servicetype"`
	URL         string `json:"url" binding:"omitempty,url"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	APIKey      string `json:"apikey"`
}

var (
	errMissingAttributes = errors.New("Missing required attributes")
	errInvalidLegacy     = errors.New("Invalid credentials")
	errInvalidAPIKey     = errors.New("Invalid API key")
	errServiceType       = errors.New("Unrecognised servicetype")
)

// fields validates the request and returns the credential columns. IAM api
// keys are stored split across the username and password columns.
func (r *credentialsRequest) fields() (models.CredentialFields, error) {
	if r.ServiceType == "" {
		return models.CredentialFields{}, errMissingAttributes
	}
	if r.ServiceType != models.ServiceTypeText {
		return models.CredentialFields{}, errServiceType
	}

	f := models.CredentialFields{ID: uuid.NewString(), ServiceType: r.ServiceType, URL: r.URL}
	switch {
	case r.Username != "" && r.Password != "":
		if len(r.Username) != legacyUsernameLength || len(r.Password) != legacyPasswordLength {
			return models.CredentialFields{}, errInvalidLegacy
		}
		f.Username, f.Password = r.Username, r.Password
		f.CredentialsType = models.CredentialsLegacy
		if f.URL == "" {
			f.URL = legacyServiceURL
		}
	case r.APIKey != "":
		if len(r.APIKey) != apiKeyLength {
			return models.CredentialFields{}, errInvalidAPIKey
		}
		half := apiKeyLength / 2
		f.Username, f.Password = r.APIKey[:half], r.APIKey[half:]
		f.CredentialsType = models.CredentialsIAM
		if f.URL == "" {
			f.URL = iamServiceURL
		}
	default:
		return models.CredentialFields{}, errMissingAttributes
	}
	return f, nil
}

// verify makes one call with the credentials. It writes the response and
// returns false when they are rejected.
func (h *CredentialsHandlers) verify(c *gin.Context, creds models.ServiceCredentials) bool {
	if h.verifier == nil {
		return true
	}
	_, err := h.verifier.ListClassifiers(c.Request.Context(), creds)
	if err == nil {
		return true
	}
	if errors.Is(err, training.ErrBadCredentials) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Credentials could not be verified"})
		return false
	}
	slog.Error("failed to verify credentials", "credentials_id", creds.Fields().ID, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify credentials"})
	return false
}

// requireUnmanaged writes 403 and returns false for classes whose
// credentials are provisioned for them.
func (h *CredentialsHandlers) requireUnmanaged(c *gin.Context, classID string) bool {
	tenant, err := h.tenants.GetClassTenant(c.Request.Context(), classID)
	if err != nil {
		slog.Error("failed to read class policy", "class_id", classID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read class policy"})
		return false
	}
	switch tenant.TenantType {
	case models.UnManaged:
		return true
	case models.Managed, models.ManagedPool:
		c.JSON(http.StatusForbidden, gin.H{"error": "Credentials for this class are managed for you"})
		return false
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unknown class type"})
		return false
	}
}

// ListClassCredentials lists the credentials a class has supplied. Secrets
// are never returned.
// GET /api/classes/:classid/credentials?servicetype=conv
func (h *CredentialsHandlers) ListClassCredentials(c *gin.Context) {
	serviceType := c.Query("servicetype")
	if serviceType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required servicetype parameter"})
		return
	}
	if serviceType != models.ServiceTypeText {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unrecognised servicetype parameter"})
		return
	}

	creds, err := h.manager.ClassCredentials(c.Request.Context(), c.Param("classid"), serviceType)
	if errors.Is(err, pool.ErrNoCredentials) {
		c.JSON(http.StatusOK, []*models.Credentials{})
		return
	}
	if err != nil {
		slog.Error("failed to list class credentials", "class_id", c.Param("classid"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list credentials"})
		return
	}
	c.JSON(http.StatusOK, creds)
}

// AddClassCredentials stores credentials supplied by a class after checking
// the remote service accepts them
// POST /api/classes/:classid/credentials
func (h *CredentialsHandlers) AddClassCredentials(c *gin.Context) {
	classID := c.Param("classid")
	if !h.requireUnmanaged(c, classID) {
		return
	}

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	fields, err := req.fields()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds := &models.Credentials{CredentialFields: fields, ClassID: classID}
	if !h.verify(c, creds) {
		return
	}
	if err := h.manager.AddClassCredentials(c.Request.Context(), creds); err != nil {
		slog.Error("failed to add class credentials", "class_id", classID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add credentials"})
		return
	}
	slog.Info("class credentials added", "class_id", classID, "credentials_id", creds.ID, "credentials_type", creds.CredentialsType)
	c.JSON(http.StatusCreated, creds)
}

// DeleteClassCredentials removes credentials from a class, deleting the
// classifiers that were built with them first
// DELETE /api/classes/:classid/credentials/:credentialsid
func (h *CredentialsHandlers) DeleteClassCredentials(c *gin.Context) {
	ctx := c.Request.Context()
	classID := c.Param("classid")
	if !h.requireUnmanaged(c, classID) {
		return
	}

	ref := models.CredentialsRef{ID: c.Param("credentialsid"), Source: models.SourceClass}
	resolved, err := h.manager.ResolveRef(ctx, ref)
	if errors.Is(err, pool.ErrCredentialsNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if err != nil {
		slog.Error("failed to read class credentials", "credentials_id", ref.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete credentials"})
		return
	}
	if creds, ok := resolved.(*models.Credentials); !ok || creds.ClassID != classID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	if err := h.cleaner.DeleteForCredentials(ctx, resolved); err != nil {
		slog.Error("failed to delete classifiers for credentials", "credentials_id", ref.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete credentials"})
		return
	}
	err = h.manager.DeleteClassCredentials(ctx, classID, ref.ID)
	if err != nil && !errors.Is(err, pool.ErrCredentialsNotFound) {
		slog.Error("failed to delete class credentials", "credentials_id", ref.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete credentials"})
		return
	}
	slog.Info("class credentials deleted", "class_id", classID, "credentials_id", ref.ID)
	c.Status(http.StatusNoContent)
}
