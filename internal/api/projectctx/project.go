// Package projectctx loads the project named by a route and makes it
// available to the handlers after it.
package projectctx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

const projectKey = "project"

// ProjectStore reads projects. It is implemented by
// repositories.ProjectRepository.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
}

// LoadProject reads the :projectid project and aborts with 404 unless it
// belongs to the :classid class and the :studentid student.
func LoadProject(projects ProjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		project, err := projects.GetProject(c.Request.Context(), c.Param("projectid"))
		if err != nil {
			slog.Error("failed to read project", "project_id", c.Param("projectid"), "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to read project"})
			return
		}
		if project == nil || project.ClassID != c.Param("classid") || project.UserID != c.Param("studentid") {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.Set(projectKey, project)
		c.Next()
	}
}

// Project returns the project set by LoadProject, or nil
func Project(c *gin.Context) *models.Project {
	v, ok := c.Get(projectKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Project)
	return p
}
