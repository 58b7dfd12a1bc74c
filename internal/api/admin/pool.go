package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/pool"
)

// AddPooledCredentials adds credentials to the shared pool
// POST /api/admin/pool
func (h *CredentialsHandlers) AddPooledCredentials(c *gin.Context) {
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

	creds := &models.PooledCredentials{CredentialFields: fields}
	if !h.verify(c, creds) {
		return
	}
	if err := h.manager.AddPooled(c.Request.Context(), creds); err != nil {
		slog.Error("failed to add pooled credentials", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add credentials"})
		return
	}
	slog.Info("pooled credentials added", "credentials_id", creds.ID, "service_type", creds.ServiceType)
	c.JSON(http.StatusCreated, creds)
}

// RetirePooledCredentials removes credentials from the shared pool, deleting
// the classifiers that were built with them first
// DELETE /api/admin/pool/:credentialsid
func (h *CredentialsHandlers) RetirePooledCredentials(c *gin.Context) {
	ctx := c.Request.Context()
	ref := models.CredentialsRef{ID: c.Param("credentialsid"), Source: models.SourcePool}

	creds, err := h.manager.ResolveRef(ctx, ref)
	if errors.Is(err, pool.ErrCredentialsNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if err != nil {
		slog.Error("failed to read pooled credentials", "credentials_id", ref.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retire credentials"})
		return
	}

	if err := h.cleaner.DeleteForCredentials(ctx, creds); err != nil {
		slog.Error("failed to delete classifiers for pooled credentials", "credentials_id", ref.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retire credentials"})
		return
	}
	err = h.manager.RetirePooled(ctx, ref.ID)
	if err != nil && !errors.Is(err, pool.ErrCredentialsNotFound) {
		slog.Error("failed to retire pooled credentials", "credentials_id", ref.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retire credentials"})
		return
	}
	slog.Info("pooled credentials retired", "credentials_id", ref.ID)
	c.Status(http.StatusNoContent)
}
