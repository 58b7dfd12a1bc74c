// auth.go authenticates bearer tokens and enforces class membership. Session users carry a
// JWT signed by this service; registered users carry a token from the identity provider.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/IBM/taxinomitis-sub001/internal/auth"
)

// IdentityKey is the gin.Context key holding the authenticated *auth.Identity
const IdentityKey = "identity"

// SessionVerifier checks session user JWTs. It is implemented by
// auth.SessionSigner.
type SessionVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// SessionChecker confirms a session user still exists with the given token.
// It is implemented by sessionusers.Gate.
type SessionChecker interface {
	CheckToken(ctx context.Context, id, token string) bool
}

// IdentityVerifier checks identity provider tokens. It is implemented by
// auth.OIDCVerifier.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// AuthMiddleware requires a valid bearer token. Session JWTs are tried first
// because they are checked locally; the identity provider is consulted only
// when one is configured.
func AuthMiddleware(sessions SessionVerifier, checker SessionChecker, idp IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		if sessions != nil {
			if id, err := sessions.Verify(token); err == nil {
				if checker == nil || !checker.CheckToken(c.Request.Context(), id.UserID, id.SessionToken) {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
						"error": "Session expired",
					})
					return
				}
				c.Set(IdentityKey, id)
				c.Next()
				return
			}
		}

		if idp != nil {
			if id, err := idp.Verify(c.Request.Context(), token); err == nil {
				c.Set(IdentityKey, id)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid or expired token",
		})
	}
}

// CurrentIdentity returns the caller set by AuthMiddleware, or nil
func CurrentIdentity(c *gin.Context) *auth.Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*auth.Identity)
	return id
}

// RequireClassAccess limits a route to members of the :classid class. When
// the route has a :studentid, students may only reach their own resources
// while supervisors may reach any student in their class.
func RequireClassAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		if id.ClassID != c.Param("classid") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid access"})
			return
		}
		if studentID := c.Param("studentid"); studentID != "" && !id.IsSupervisor() && studentID != id.UserID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid access"})
			return
		}
		c.Next()
	}
}

// RequireSupervisor limits a route to class supervisors. Use it after
// RequireClassAccess.
func RequireSupervisor() gin.HandlerFunc {
	return requireRole(func(id *auth.Identity) bool { return id.IsSupervisor() })
}

// RequireSiteAdmin limits a route to site administrators
func RequireSiteAdmin() gin.HandlerFunc {
	return requireRole(func(id *auth.Identity) bool { return id.IsSiteAdmin() })
}

func requireRole(allowed func(*auth.Identity) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		if !allowed(id) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}
