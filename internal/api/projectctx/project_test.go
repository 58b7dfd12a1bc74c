package projectctx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProjects struct {
	projects map[string]*models.Project
	err      error
}

func (f fakeProjects) GetProject(_ context.Context, id string) (*models.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.projects[id], nil
}

func newProjectRouter(store ProjectStore) *gin.Engine {
	r := gin.New()
	r.GET("/api/classes/:classid/students/:studentid/projects/:projectid", LoadProject(store), func(c *gin.Context) {
		c.String(http.StatusOK, Project(c).Name)
	})
	return r
}

func TestLoadProject(t *testing.T) {
	store := fakeProjects{projects: map[string]*models.Project{
		"p1": {ID: "p1", ClassID: "class1", UserID: "student1", Type: models.ProjectText, Name: "pets"},
	}}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"owner", "/api/classes/class1/students/student1/projects/p1", http.StatusOK, "pets"},
		{"unknown project", "/api/classes/class1/students/student1/projects/p2", http.StatusNotFound, ""},
		{"other student", "/api/classes/class1/students/student2/projects/p1", http.StatusNotFound, ""},
		{"other class", "/api/classes/class2/students/student1/projects/p1", http.StatusNotFound, ""},
	}
	r := newProjectRouter(store)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestLoadProject_StoreError(t *testing.T) {
	r := newProjectRouter(fakeProjects{err: errors.New("connection reset")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/classes/class1/students/student1/projects/p1", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestProject_NotLoaded(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, Project(c))
}
