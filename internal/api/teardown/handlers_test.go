package teardown

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/IBM/taxinomitis-sub001/internal/api/projectctx"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDeleter struct {
	projects []string
	classes  []string
	err      error
}

func (f *fakeDeleter) DeleteProject(_ context.Context, p *models.Project) error {
	if f.err != nil {
		return f.err
	}
	f.projects = append(f.projects, p.ID)
	return nil
}

func (f *fakeDeleter) DeleteClass(_ context.Context, classID string) error {
	if f.err != nil {
		return f.err
	}
	f.classes = append(f.classes, classID)
	return nil
}

type fakeProjects map[string]*models.Project

func (f fakeProjects) GetProject(_ context.Context, id string) (*models.Project, error) {
	return f[id], nil
}

func newRouter(d Deleter) *gin.Engine {
	h := NewHandlers(d)
	r := gin.New()
	projects := fakeProjects{"p1": {ID: "p1", ClassID: "class1", UserID: "student1", Type: models.ProjectImages}}
	r.DELETE("/api/classes/:classid/students/:studentid/projects/:projectid", projectctx.LoadProject(projects), h.DeleteProject)
	r.DELETE("/api/classes/:classid", h.DeleteClass)
	return r
}

func do(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, path, nil))
	return w
}

func TestDeleteProject(t *testing.T) {
	d := &fakeDeleter{}
	w := do(newRouter(d), "/api/classes/class1/students/student1/projects/p1")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"p1"}, d.projects)
}

func TestDeleteProject_OtherStudent(t *testing.T) {
	d := &fakeDeleter{}
	w := do(newRouter(d), "/api/classes/class1/students/student2/projects/p1")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, d.projects)
}

func TestDeleteProject_Failure(t *testing.T) {
	w := do(newRouter(&fakeDeleter{err: errors.New("db down")}), "/api/classes/class1/students/student1/projects/p1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDeleteClass(t *testing.T) {
	d := &fakeDeleter{}
	w := do(newRouter(d), "/api/classes/class1")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"class1"}, d.classes)
}

func TestDeleteClass_SessionUsersRefused(t *testing.T) {
	d := &fakeDeleter{}
	w := do(newRouter(d), "/api/classes/"+models.SessionUsersClass)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, d.classes)
}

func TestDeleteClass_Failure(t *testing.T) {
	w := do(newRouter(&fakeDeleter{err: errors.New("remote unavailable")}), "/api/classes/class1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
