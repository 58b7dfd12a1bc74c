// Package teardown implements the endpoints that delete a project or a whole
// class along with the models and stored data that belong to it.
package teardown

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/IBM/taxinomitis-sub001/internal/api/projectctx"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

// Deleter removes projects and classes. It is implemented by cleanup.Deleter.
type Deleter interface {
	DeleteProject(ctx context.Context, project *models.Project) error
	DeleteClass(ctx context.Context, classID string) error
}

// Handlers handles project and class deletion
type Handlers struct {
	deleter Deleter
}

// NewHandlers creates deletion handlers
func NewHandlers(deleter Deleter) *Handlers {
	return &Handlers{deleter: deleter}
}

// DeleteProject deletes the project loaded by projectctx
// DELETE /api/classes/:classid/students/:studentid/projects/:projectid
func (h *Handlers) DeleteProject(c *gin.Context) {
	project := projectctx.Project(c)
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if err := h.deleter.DeleteProject(c.Request.Context(), project); err != nil {
		slog.Error("failed to delete project", "project_id", project.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteClass deletes everything held for the caller's class. A failed
// delete can be retried.
// DELETE /api/classes/:classid
func (h *Handlers) DeleteClass(c *gin.Context) {
	classID := c.Param("classid")
	if classID == models.SessionUsersClass {
		c.JSON(http.StatusForbidden, gin.H{"error": "The session users class cannot be deleted"})
		return
	}
	if err := h.deleter.DeleteClass(c.Request.Context(), classID); err != nil {
		slog.Error("failed to delete class", "class_id", classID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete class"})
		return
	}
	slog.Info("class deletion requested", "class_id", classID)
	c.Status(http.StatusNoContent)
}
