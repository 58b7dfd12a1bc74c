// Package classifiers implements the endpoints for training, listing and
// deleting the ML models behind student projects, and the class level
// classifier maintenance used by teachers.
package classifiers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IBM/taxinomitis-sub001/internal/api/projectctx"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/pool"
	"github.com/IBM/taxinomitis-sub001/internal/training"
)

// Trainer manages classifier lifecycles. It is implemented by
// training.Tracker.
type Trainer interface {
	Train(ctx context.Context, project *models.Project, spec *training.TrainingSpec) (*models.Classifier, error)
	Statuses(ctx context.Context, tenant *models.ClassTenant, projectID string) ([]training.ClassifierStatus, error)
	Delete(ctx context.Context, tenant *models.ClassTenant, classifier *models.Classifier) error
	RecordNumbersClassifier(ctx context.Context, project *models.Project, status models.NumbersClassifierStatus) (*models.NumbersClassifier, error)
	NumbersClassifier(ctx context.Context, project *models.Project) (*models.NumbersClassifier, error)
	DeleteNumbersClassifier(ctx context.Context, project *models.Project) error
	ReconcileAgainstRemote(ctx context.Context, tenant *models.ClassTenant) ([]training.UnknownClassifier, error)
	DeleteUnknown(ctx context.Context, tenant *models.ClassTenant, credentialsID, externalID string) error
	UpdateTenantPolicy(ctx context.Context, classID string, hours int) (*models.ClassTenant, error)
}

// ClassifierLookup reads local classifier rows
type ClassifierLookup interface {
	ListByProject(ctx context.Context, projectID string) ([]*models.Classifier, error)
}

// TenantLookup reads class policy
type TenantLookup interface {
	GetClassTenant(ctx context.Context, classID string) (*models.ClassTenant, error)
}

// Handlers handles model and classifier endpoints
type Handlers struct {
	trainer     Trainer
	classifiers ClassifierLookup
	tenants     TenantLookup
}

// NewHandlers creates model handlers
func NewHandlers(trainer Trainer, classifiers ClassifierLookup, tenants TenantLookup) *Handlers {
	return &Handlers{trainer: trainer, classifiers: classifiers, tenants: tenants}
}

// textModel is how a text classifier is shown to the project owner
type textModel struct {
	ClassifierID  string    `json:"classifierid"`
	CredentialsID string    `json:"credentialsid"`
	Updated       time.Time `json:"updated"`
	Expiry        time.Time `json:"expiry"`
	Name          string    `json:"name"`
	Status        string    `json:"status"`
}

func newTextModel(c *models.Classifier, status string, updated time.Time) textModel {
	if updated.IsZero() {
		updated = c.LastTrained()
	}
	return textModel{
		ClassifierID:  c.ExternalID,
		CredentialsID: c.CredentialsID,
		Updated:       updated,
		Expiry:        c.Expiry,
		Name:          c.Name,
		Status:        status,
	}
}

// numbersModel is how a numbers classifier is shown to the project owner
type numbersModel struct {
	*models.NumbersClassifier
	Updated time.Time `json:"updated"`
}

func newNumbersModel(nc *models.NumbersClassifier) numbersModel {
	return numbersModel{NumbersClassifier: nc, Updated: nc.Created}
}

// trainingStatus is what the remote service reports for a workspace that has
// just been submitted.
const trainingStatus = "Training"

// modelError maps training failures to the codes the web client shows
// messages for.
func modelError(c *gin.Context, project *models.Project, err error) {
	switch {
	case errors.Is(err, training.ErrInsufficientKeys):
		c.JSON(http.StatusConflict, gin.H{"code": "MLMOD01", "error": err.Error()})
	case errors.Is(err, training.ErrPoolExhausted):
		slog.Error("managed classes have exhausted the pool of text credentials", "class_id", project.ClassID)
		c.JSON(http.StatusConflict, gin.H{"code": "MLMOD15", "error": err.Error()})
	case errors.Is(err, training.ErrKeysRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"code": "MLMOD02", "error": err.Error()})
	case errors.Is(err, training.ErrModelNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "MLMOD03", "error": err.Error() + ". Please try again"})
	case errors.Is(err, training.ErrBadCredentials):
		c.JSON(http.StatusConflict, gin.H{
			"code":  "MLMOD04",
			"error": "The credentials being used by your class were rejected. Please let your teacher or group leader know.",
		})
	case errors.Is(err, pool.ErrNoCredentials), errors.Is(err, pool.ErrCredentialsNotFound):
		c.JSON(http.StatusConflict, gin.H{
			"code":  "MLMOD05",
			"error": "No credentials have been set up for training text projects. Please let your teacher or group leader know.",
		})
	default:
		slog.Error("failed to train model", "project_id", project.ID, "class_id", project.ClassID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to train model"})
	}
}

// GetModels lists the models for the project loaded by projectctx
// GET /api/classes/:classid/students/:studentid/projects/:projectid/models
func (h *Handlers) GetModels(c *gin.Context) {
	ctx := c.Request.Context()
	project := projectctx.Project(c)
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")

	switch project.Type {
	case models.ProjectText:
		tenant, err := h.tenants.GetClassTenant(ctx, project.ClassID)
		if err != nil {
			slog.Error("failed to read class policy", "class_id", project.ClassID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list models"})
			return
		}
		statuses, err := h.trainer.Statuses(ctx, tenant, project.ID)
		if err != nil {
			slog.Error("failed to read model statuses", "project_id", project.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list models"})
			return
		}
		if len(statuses) > 1 {
			slog.Error("unexpected number of models", "project_id", project.ID, "count", len(statuses))
		}
		out := make([]textModel, len(statuses))
		for i, s := range statuses {
			out[i] = newTextModel(s.Classifier, s.Status, s.Updated)
		}
		c.JSON(http.StatusOK, out)
	case models.ProjectNumbers:
		nc, err := h.trainer.NumbersClassifier(ctx, project)
		if err != nil {
			slog.Error("failed to read numbers model", "project_id", project.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list models"})
			return
		}
		out := []numbersModel{}
		if nc != nil {
			out = append(out, newNumbersModel(nc))
		}
		c.JSON(http.StatusOK, out)
	case models.ProjectImages, models.ProjectSounds, models.ProjectImgTfjs:
		c.JSON(http.StatusOK, []any{})
	}
}

// NewModel trains a model for the project loaded by projectctx
// POST /api/classes/:classid/students/:studentid/projects/:projectid/models
func (h *Handlers) NewModel(c *gin.Context) {
	ctx := c.Request.Context()
	project := projectctx.Project(c)
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	switch project.Type {
	case models.ProjectText:
		var spec training.TrainingSpec
		if err := c.ShouldBindJSON(&spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid training data: " + err.Error()})
			return
		}
		if spec.Language == "" {
			spec.Language = project.Language
		}
		classifier, err := h.trainer.Train(ctx, project, &spec)
		if err != nil {
			modelError(c, project, err)
			return
		}
		c.JSON(http.StatusCreated, newTextModel(classifier, trainingStatus, classifier.Created))
	case models.ProjectNumbers:
		nc, err := h.trainer.RecordNumbersClassifier(ctx, project, models.NumbersAvailable)
		if err != nil {
			slog.Error("failed to record numbers model", "project_id", project.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to train model"})
			return
		}
		c.JSON(http.StatusCreated, newNumbersModel(nc))
	case models.ProjectImages, models.ProjectSounds, models.ProjectImgTfjs:
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Not implemented"})
	}
}

// DeleteModel deletes one of the project's models
// DELETE /api/classes/:classid/students/:studentid/projects/:projectid/models/:modelid
func (h *Handlers) DeleteModel(c *gin.Context) {
	ctx := c.Request.Context()
	project := projectctx.Project(c)
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	switch project.Type {
	case models.ProjectText:
		classifier, err := h.findClassifier(ctx, project.ID, c.Param("modelid"))
		if err != nil {
			slog.Error("failed to read project models", "project_id", project.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete model"})
			return
		}
		if classifier == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		tenant, err := h.tenants.GetClassTenant(ctx, project.ClassID)
		if err != nil {
			slog.Error("failed to read class policy", "class_id", project.ClassID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete model"})
			return
		}
		if err := h.trainer.Delete(ctx, tenant, classifier); err != nil {
			slog.Error("failed to delete model", "project_id", project.ID, "classifier_id", classifier.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete model"})
			return
		}
		c.Status(http.StatusNoContent)
	case models.ProjectNumbers:
		if err := h.trainer.DeleteNumbersClassifier(ctx, project); err != nil {
			slog.Error("failed to delete numbers model", "project_id", project.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete model"})
			return
		}
		c.Status(http.StatusNoContent)
	case models.ProjectImages, models.ProjectSounds, models.ProjectImgTfjs:
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	}
}

// findClassifier returns the project's classifier whose remote id is modelID
func (h *Handlers) findClassifier(ctx context.Context, projectID, modelID string) (*models.Classifier, error) {
	classifiers, err := h.classifiers.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, c := range classifiers {
		if c.ExternalID == modelID {
			return c, nil
		}
	}
	return nil, nil
}
