// Package sessions implements the endpoints that create and remove "try it
// now" session users.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/IBM/taxinomitis-sub001/internal/auth"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
	"github.com/IBM/taxinomitis-sub001/internal/middleware"
	"github.com/IBM/taxinomitis-sub001/internal/sessionusers"
)

// originHeader carries the caller's country code when the service runs
// behind Cloudflare.
const originHeader = "CF-IPCountry"

// Gate creates and deletes session users. It is implemented by
// sessionusers.Gate.
type Gate interface {
	CreateSessionUser(ctx context.Context, origin string) (*models.TemporaryUser, error)
	DeleteSessionUser(ctx context.Context, user *models.TemporaryUser) error
}

// TokenSigner issues the JWT a session user authenticates with
type TokenSigner interface {
	Sign(user *models.TemporaryUser) (string, error)
}

// Handlers handles session user endpoints
type Handlers struct {
	gate   Gate
	signer TokenSigner
}

// NewHandlers creates session user handlers
func NewHandlers(gate Gate, signer TokenSigner) *Handlers {
	return &Handlers{gate: gate, signer: signer}
}

// CreateSessionUser creates a temporary user and returns its credentials
// POST /api/sessionusers
func (h *Handlers) CreateSessionUser(c *gin.Context) {
	user, err := h.gate.CreateSessionUser(c.Request.Context(), c.GetHeader(originHeader))
	if errors.Is(err, sessionusers.ErrClassFull) {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "Class full"})
		return
	}
	if err != nil {
		slog.Error("failed to create session user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session user"})
		return
	}

	token, err := h.signer.Sign(user)
	if err != nil {
		slog.Error("failed to sign session user token", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":            user.ID,
		"token":         user.Token,
		"sessionExpiry": user.SessionExpiry,
		"jwt":           token,
	})
}

// DeleteSessionUser lets a session user end their own session early
// DELETE /api/classes/:classid/sessionusers/:studentid
func (h *Handlers) DeleteSessionUser(c *gin.Context) {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	if id.Method != auth.MethodSession ||
		c.Param("classid") != models.SessionUsersClass ||
		c.Param("studentid") != id.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid access"})
		return
	}

	user := &models.TemporaryUser{ID: id.UserID, Token: id.SessionToken}
	if err := h.gate.DeleteSessionUser(c.Request.Context(), user); err != nil {
		slog.Error("failed to delete session user", "user_id", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session user"})
		return
	}
	c.Status(http.StatusNoContent)
}
