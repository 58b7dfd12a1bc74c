// Package auth - session.go signs and verifies the JWTs handed to session
// users. The token carries the session id and token so that a deleted or
// lapsed session user is rejected even while the JWT itself is unexpired.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

// ErrMissingSecret is returned outside dev mode when no signing secret is set
var ErrMissingSecret = errors.New("auth.session.jwt_secret (MLK_AUTH_SESSION_JWT_SECRET) is required in production; generate one with: openssl rand -hex 32")

// SessionInfo is the session payload of a session user JWT
type SessionInfo struct {
	ID            string `json:"id"`
	Token         string `json:"token"`
	SessionExpiry int64  `json:"sessionExpiry"`
}

// SessionClaims are the claims of a session user JWT
type SessionClaims struct {
	Session SessionInfo `json:"session"`
	Tenant  string      `json:"tenant"`
	Role    Role        `json:"role"`
	jwt.RegisteredClaims
}

// SessionSigner issues and verifies session user JWTs with a shared secret
type SessionSigner struct {
	secret []byte
	issuer string
	clock  clockwork.Clock
}

// isDevMode checks if we're in development mode
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")
	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// NewSessionSigner creates a signer. In dev mode a missing secret is replaced
// by a random one, so session JWTs do not survive a restart.
func NewSessionSigner(cfg config.SessionAuthConfig, clock clockwork.Clock) (*SessionSigner, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if !isDevMode() {
			return nil, ErrMissingSecret
		}
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		slog.Warn("session JWT secret not set, using an auto-generated secret for development")
	} else if len(secret) < 32 {
		slog.Warn("session JWT secret is shorter than the recommended 32 characters")
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "mlforkids"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionSigner{secret: []byte(secret), issuer: issuer, clock: clock}, nil
}

// Sign creates a JWT for a session user that expires with the session
func (s *SessionSigner) Sign(user *models.TemporaryUser) (string, error) {
	claims := &SessionClaims{
		Session: SessionInfo{
			ID:            user.ID,
			Token:         user.Token,
			SessionExpiry: user.SessionExpiry.UnixMilli(),
		},
		Tenant: models.SessionUsersClass,
		Role:   RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(s.clock.Now()),
			ExpiresAt: jwt.NewNumericDate(user.SessionExpiry),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Verify parses a session user JWT and returns the caller it identifies
func (s *SessionSigner) Verify(tokenString string) (*Identity, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Subject != claims.Session.ID || claims.Session.Token == "" {
		return nil, errors.New("session token is missing its session")
	}
	return &Identity{
		UserID:       claims.Subject,
		ClassID:      claims.Tenant,
		Role:         RoleStudent,
		Method:       MethodSession,
		SessionToken: claims.Session.Token,
	}, nil
}
