// Package scratchkeys implements the endpoints Scratch projects use to get
// and check their keys.
package scratchkeys

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/IBM/taxinomitis-sub001/internal/api/projectctx"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/pool"
	"github.com/IBM/taxinomitis-sub001/internal/scratch"
)

// KeyIssuer issues and reports on scratch keys. It is implemented by
// scratch.Issuer.
type KeyIssuer interface {
	Issue(ctx context.Context, project *models.Project) ([]scratch.Key, error)
	Status(ctx context.Context, keyID string) (*scratch.KeyStatus, error)
}

// Handlers handles scratch key endpoints
type Handlers struct {
	issuer KeyIssuer
}

// NewHandlers creates scratch key handlers
func NewHandlers(issuer KeyIssuer) *Handlers {
	return &Handlers{issuer: issuer}
}

// GetScratchKeys returns the key for the project loaded by projectctx
// GET /api/classes/:classid/students/:studentid/projects/:projectid/scratchkeys
func (h *Handlers) GetScratchKeys(c *gin.Context) {
	project := projectctx.Project(c)
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	keys, err := h.issuer.Issue(c.Request.Context(), project)
	if err != nil {
		slog.Error("failed to issue scratch key", "project_id", project.ID, "error", err)
		if errors.Is(err, pool.ErrCredentialsNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "The credentials used to train this project are no longer available. Please train a new model."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get scratch key"})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.JSON(http.StatusOK, keys)
}

// GetStatus reports whether a key has a model to classify with. The key is
// the credential, so the route is not behind AuthMiddleware.
// GET /api/scratch/:scratchkey/status
func (h *Handlers) GetStatus(c *gin.Context) {
	status, err := h.issuer.Status(c.Request.Context(), c.Param("scratchkey"))
	if errors.Is(err, scratch.ErrKeyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scratch key not found"})
		return
	}
	if err != nil {
		slog.Error("failed to read scratch key status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read scratch key"})
		return
	}
	c.JSON(http.StatusOK, status)
}
