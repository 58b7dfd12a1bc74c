package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

const testSecret = "test-jwt-secret-that-is-32-chars-!"

func newTestSigner(t *testing.T, clock clockwork.Clock) *SessionSigner {
	t.Helper()
	s, err := NewSessionSigner(config.SessionAuthConfig{JWTSecret: testSecret, Issuer: "mlforkids"}, clock)
	if err != nil {
		t.Fatalf("NewSessionSigner: %v", err)
	}
	return s
}

func testUser(clock clockwork.Clock) *models.TemporaryUser {
	return &models.TemporaryUser{
		ID:            "4f6c2a8e-session-user",
		Token:         "2d1b-token",
		SessionExpiry: clock.Now().Add(4 * time.Hour),
	}
}

// ---------------------------------------------------------------------------
// NewSessionSigner
// ---------------------------------------------------------------------------

func TestNewSessionSigner(t *testing.T) {
	t.Run("production mode requires secret", func(t *testing.T) {
		t.Setenv("DEV_MODE", "")
		t.Setenv("GIN_MODE", "release")
		if _, err := NewSessionSigner(config.SessionAuthConfig{}, nil); err != ErrMissingSecret {
			t.Errorf("NewSessionSigner() error = %v, want ErrMissingSecret", err)
		}
	})

	t.Run("dev mode generates random secret", func(t *testing.T) {
		t.Setenv("DEV_MODE", "true")
		s, err := NewSessionSigner(config.SessionAuthConfig{}, nil)
		if err != nil {
			t.Fatalf("NewSessionSigner() unexpected error in dev mode: %v", err)
		}
		if len(s.secret) != 64 {
			t.Errorf("generated secret length = %d, want 64", len(s.secret))
		}
		if s.issuer != "mlforkids" {
			t.Errorf("default issuer = %q, want mlforkids", s.issuer)
		}
	})
}

// ---------------------------------------------------------------------------
// Sign / Verify
// ---------------------------------------------------------------------------

func TestSignAndVerify(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestSigner(t, clock)
	user := testUser(clock)

	token, err := s.Sign(user)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token %q is not a JWT", token)
	}

	id, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", id.UserID, user.ID)
	}
	if id.ClassID != models.SessionUsersClass {
		t.Errorf("ClassID = %q, want %q", id.ClassID, models.SessionUsersClass)
	}
	if id.Role != RoleStudent || id.Method != MethodSession {
		t.Errorf("Role/Method = %q/%q, want student/session", id.Role, id.Method)
	}
	if id.SessionToken != user.Token {
		t.Errorf("SessionToken = %q, want %q", id.SessionToken, user.Token)
	}
}

func TestVerify_ExpiresWithSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestSigner(t, clock)
	token, err := s.Sign(testUser(clock))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	clock.Advance(4*time.Hour + time.Minute)
	if _, err := s.Verify(token); err == nil {
		t.Error("Verify() expected error for lapsed session, got nil")
	}
}

func TestVerify_Rejects(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestSigner(t, clock)
	user := testUser(clock)

	other, err := NewSessionSigner(config.SessionAuthConfig{JWTSecret: "another-secret-that-is-32-chars-!!", Issuer: "mlforkids"}, clock)
	if err != nil {
		t.Fatalf("NewSessionSigner: %v", err)
	}
	wrongSecret, _ := other.Sign(user)

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{
		Session:          SessionInfo{ID: user.ID, Token: user.Token},
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID, Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(user.SessionExpiry)},
	}).SignedString([]byte(testSecret))

	noSession, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID, Issuer: "mlforkids", ExpiresAt: jwt.NewNumericDate(user.SessionExpiry)},
	}).SignedString([]byte(testSecret))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{
		Session:          SessionInfo{ID: user.ID, Token: user.Token},
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID, Issuer: "mlforkids"},
	}).SignedString([]byte(testSecret))

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &SessionClaims{
		Session:          SessionInfo{ID: user.ID, Token: user.Token},
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID, Issuer: "mlforkids", ExpiresAt: jwt.NewNumericDate(user.SessionExpiry)},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", wrongSecret},
		{"wrong issuer", wrongIssuer},
		{"missing session", noSession},
		{"missing expiry", noExpiry},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Verify(tt.token); err == nil {
				t.Error("Verify() expected error, got nil")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ParseRole
// ---------------------------------------------------------------------------

func TestParseRole(t *testing.T) {
	for _, r := range []string{"student", "supervisor", "siteadmin"} {
		if _, err := ParseRole(r); err != nil {
			t.Errorf("ParseRole(%q) unexpected error: %v", r, err)
		}
	}
	if _, err := ParseRole("teacher"); err == nil {
		t.Error("ParseRole(teacher) expected error, got nil")
	}
}
