package training

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const (
	legacyUser = "0123456789abcdef0123456789abcdef0123"
	legacyPass = "abcdefghijkl"
)

func legacyCreds(url string) *models.PooledCredentials {
	return &models.PooledCredentials{CredentialFields: models.CredentialFields{
		ID:              "cred-legacy",
		ServiceType:     models.ServiceTypeText,
		URL:             url,
		Username:        legacyUser,
		Password:        legacyPass,
		CredentialsType: models.CredentialsLegacy,
	}}
}

func iamCreds(url string) *models.Credentials {
	return &models.Credentials{
		CredentialFields: models.CredentialFields{
			ID:              "cred-iam",
			ServiceType:     models.ServiceTypeText,
			URL:             url,
			Username:        "api-key-part-one",
			Password:        "-part-two",
			CredentialsType: models.CredentialsIAM,
		},
		ClassID: "class1",
	}
}

func newIAMServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("apikey") != "api-key-part-one-part-two" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "urn:ibm:params:oauth:grant-type:apikey", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "iam-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(iamURL string) *Client {
	return NewClient(config.TrainingConfig{RequestTimeout: 5 * time.Second, IAMURL: iamURL})
}

func testSpec() *TrainingSpec {
	return &TrainingSpec{
		Name: "my project",
		Intents: []Intent{
			{Intent: "happy", Examples: []Example{{Text: "I feel great"}}},
			{Intent: "sad", Examples: []Example{{Text: "I feel awful"}}},
		},
	}
}

// ---------------------------------------------------------------------------
// CreateClassifier
// ---------------------------------------------------------------------------

func TestCreateClassifier_LegacyBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/workspaces", r.URL.Path)
		assert.Equal(t, legacyAPIVersion, r.URL.Query().Get("version"))
		assert.Equal(t, "machinelearningforkids", r.Header.Get("User-Agent"))
		assert.Equal(t, "true", r.Header.Get("X-Watson-Learning-Opt-Out"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, legacyUser, user)
		assert.Equal(t, legacyPass, pass)

		var body workspaceRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "my project", body.Name)
		assert.Equal(t, "en", body.Language)
		assert.Len(t, body.Intents, 2)
		assert.NotNil(t, body.DialogNodes)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"workspace_id":"ws-1","name":"my project","language":"en",` +
			`"created":"2026-10-01T10:00:00Z","updated":"2026-10-01T10:00:00Z"}`))
	}))
	defer srv.Close()

	rc, err := newTestClient("").CreateClassifier(context.Background(), legacyCreds(srv.URL), testSpec())
	require.NoError(t, err)
	assert.Equal(t, "ws-1", rc.WorkspaceID)
	assert.Equal(t, "Training", rc.Status)
	assert.Equal(t, time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC), rc.Updated)
}

func TestCreateClassifier_IAMBearerTokenReused(t *testing.T) {
	var iamCalls int32
	iam := newIAMServer(t, &iamCalls)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer iam-token", r.Header.Get("Authorization"))
		assert.Equal(t, iamAPIVersion, r.URL.Query().Get("version"))
		_, _ = w.Write([]byte(`{"workspace_id":"ws-2","status":"Available"}`))
	}))
	defer srv.Close()

	c := newTestClient(iam.URL)
	for i := 0; i < 3; i++ {
		rc, err := c.CreateClassifier(context.Background(), iamCreds(srv.URL), testSpec())
		require.NoError(t, err)
		assert.Equal(t, "Available", rc.Status)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&iamCalls))
}

func TestCreateClassifier_IAMRejectsKey(t *testing.T) {
	var iamCalls int32
	iam := newIAMServer(t, &iamCalls)

	creds := iamCreds("http://unused.invalid")
	creds.Password = "-wrong"

	_, err := newTestClient(iam.URL).CreateClassifier(context.Background(), creds, testSpec())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadCredentials), "got %v", err)
}

func TestCreateClassifier_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"Unauthorized"}`, ErrBadCredentials},
		{"forbidden", http.StatusForbidden, ``, ErrBadCredentials},
		{"not found", http.StatusNotFound, `{"error":"Resource not found"}`, ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, `{"error":"Rate limit exceeded"}`, ErrRateLimited},
		{"workspace limit", http.StatusBadRequest, `{"error":"Maximum workspaces limit exceeded. Limit = 5"}`, ErrWorkspaceLimit},
		{"other bad request", http.StatusBadRequest, `{"error":"Invalid intent"}`, ErrUnexpectedResponse},
		{"server error", http.StatusBadGateway, `oops`, ErrServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient("").CreateClassifier(context.Background(), legacyCreds(srv.URL), testSpec())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var se *ServiceError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
		})
	}
}

func TestCreateClassifier_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient("").CreateClassifier(context.Background(), legacyCreds(url), testSpec())
	assert.True(t, errors.Is(err, ErrServiceUnavailable), "got %v", err)
}

// ---------------------------------------------------------------------------
// UpdateClassifier / DeleteClassifier
// ---------------------------------------------------------------------------

func TestUpdateClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/workspaces/ws-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"my project"}`))
	}))
	defer srv.Close()

	rc, err := newTestClient("").UpdateClassifier(context.Background(), legacyCreds(srv.URL), "ws-1", testSpec())
	require.NoError(t, err)
	assert.Equal(t, "ws-1", rc.WorkspaceID)
}

func TestDeleteClassifier(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"deleted", http.StatusOK, nil},
		{"already gone", http.StatusNotFound, nil},
		{"bad credentials", http.StatusUnauthorized, ErrBadCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/v1/workspaces/ws-1", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := newTestClient("").DeleteClassifier(context.Background(), legacyCreds(srv.URL), "ws-1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ListClassifiers
// ---------------------------------------------------------------------------

func TestListClassifiers_FollowsCursor(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "100", r.URL.Query().Get("page_limit"))
		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"workspaces":[{"workspace_id":"a"},{"workspace_id":"b"}],` +
				`"pagination":{"next_cursor":"page2"}}`))
		case "page2":
			_, _ = w.Write([]byte(`{"workspaces":[{"workspace_id":"c"}],"pagination":{}}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	list, err := newTestClient("").ListClassifiers(context.Background(), legacyCreds(srv.URL))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[2].WorkspaceID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestWorkspaceURL(t *testing.T) {
	got := WorkspaceURL(legacyCreds("https://gateway.example.com/assistant/api/"), "ws-9")
	assert.Equal(t, "https://gateway.example.com/assistant/api/v1/workspaces/ws-9", got)
	assert.False(t, strings.Contains(got, "//v1"))
}

func TestDeleteClassifier_SkillInUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Cannot delete skill ws-1 because it is referenced by assistant abc"}`))
	}))
	defer srv.Close()

	err := newTestClient("").DeleteClassifier(context.Background(), legacyCreds(srv.URL), "ws-1")
	assert.True(t, errors.Is(err, ErrSkillInUse), "got %v", err)
}

func TestGetClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/workspaces/ws-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"Available","updated":"2026-10-02T09:30:00Z"}`))
	}))
	defer srv.Close()

	rc, err := newTestClient("").GetClassifier(context.Background(), legacyCreds(srv.URL), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, "ws-1", rc.WorkspaceID)
	assert.Equal(t, "Available", rc.Status)
}

func TestNewWorkspaceRequest_ReplacesWhitespaceInIntents(t *testing.T) {
	spec := &TrainingSpec{
		Name:     "p",
		Language: "fr",
		Intents:  []Intent{{Intent: "very happy", Examples: []Example{{Text: "x"}}}},
	}
	req := newWorkspaceRequest(spec)
	assert.Equal(t, "fr", req.Language)
	assert.Equal(t, "very_happy", req.Intents[0].Intent)
	assert.Equal(t, "very happy", spec.Intents[0].Intent)
	assert.Equal(t, "machinelearningforkids", req.Metadata.CreatedBy)
}
