package classifiers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/IBM/taxinomitis-sub001/internal/pool"
	"github.com/IBM/taxinomitis-sub001/internal/training"
)

// GetClassifiers reports remote classifiers the class has no record of.
// Only type=unknown is supported.
// GET /api/classes/:classid/classifiers?type=unknown
func (h *Handlers) GetClassifiers(c *gin.Context) {
	if c.Query("type") != "unknown" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only unknown classifiers can be listed"})
		return
	}

	ctx := c.Request.Context()
	classID := c.Param("classid")
	tenant, err := h.tenants.GetClassTenant(ctx, classID)
	if err != nil {
		slog.Error("failed to read class policy", "class_id", classID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list classifiers"})
		return
	}

	unknown, err := h.trainer.ReconcileAgainstRemote(ctx, tenant)
	if err != nil {
		slog.Error("failed to reconcile classifiers", "class_id", classID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list classifiers"})
		return
	}
	c.JSON(http.StatusOK, unknown)
}

// DeleteClassifier removes a remote classifier reported by GetClassifiers
// DELETE /api/classes/:classid/classifiers/:classifierid?credentialsid=...
func (h *Handlers) DeleteClassifier(c *gin.Context) {
	credentialsID := c.Query("credentialsid")
	if credentialsID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required credentialsid parameter"})
		return
	}

	ctx := c.Request.Context()
	classID := c.Param("classid")
	tenant, err := h.tenants.GetClassTenant(ctx, classID)
	if err != nil {
		slog.Error("failed to read class policy", "class_id", classID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete classifier"})
		return
	}

	err = h.trainer.DeleteUnknown(ctx, tenant, credentialsID, c.Param("classifierid"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, pool.ErrCredentialsNotFound), errors.Is(err, training.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, training.ErrSkillInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("failed to delete classifier", "class_id", classID, "classifier_id", c.Param("classifierid"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete classifier"})
	}
}

// policyRequest changes how long a class keeps its text classifiers
type policyRequest struct {
	TextClassifierExpiry int `json:"textClassifierExpiry" binding:"required"`
}

// UpdatePolicy sets the text classifier expiry for a class
// PUT /api/classes/:classid/policy
func (h *Handlers) UpdatePolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	tenant, err := h.trainer.UpdateTenantPolicy(c.Request.Context(), c.Param("classid"), req.TextClassifierExpiry)
	if errors.Is(err, training.ErrInvalidExpiry) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("failed to update class policy", "class_id", c.Param("classid"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update class policy"})
		return
	}
	c.JSON(http.StatusOK, tenant)
}
