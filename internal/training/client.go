// Package training talks to the remote text classifier service and keeps the
// local classifier bookkeeping in step with it.
//
// The remote service follows the Watson Assistant workspace API. Legacy
// service instances authenticate with basic auth; newer ones exchange an IAM
// API key for a bearer token, which is cached per key and refreshed five
// minutes before it expires.
package training

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/db/models"
)

const (
	userAgent          = "machinelearningforkids"
	legacyAPIVersion   = "2017-05-26"
	iamAPIVersion      = "2018-09-20"
	workspaceListLimit = 100
	tokenRefreshEarly  = 5 * time.Minute
	maxErrorBody       = 64 << 10

	workspaceLimitMessage = "Maximum workspaces limit exceeded"
	skillInUseMessage     = "Cannot delete skill"
)

// Service is the remote classifier API used by the Tracker
type Service interface {
	CreateClassifier(ctx context.Context, creds models.ServiceCredentials, spec *TrainingSpec) (*RemoteClassifier, error)
	UpdateClassifier(ctx context.Context, creds models.ServiceCredentials, externalID string, spec *TrainingSpec) (*RemoteClassifier, error)
	DeleteClassifier(ctx context.Context, creds models.ServiceCredentials, externalID string) error
	GetClassifier(ctx context.Context, creds models.ServiceCredentials, externalID string) (*RemoteClassifier, error)
	ListClassifiers(ctx context.Context, creds models.ServiceCredentials) ([]RemoteClassifier, error)
}

// TrainingSpec is the training data for one text classifier
type TrainingSpec struct {
	Name     string   `json:"name" binding:"required"`
	Language string   `json:"language"`
	Intents  []Intent `json:"intents" binding:"required,min=2,dive"`
}

// Intent is one label and its examples
type Intent struct {
	Intent   string    `json:"intent" binding:"required"`
	Examples []Example `json:"examples" binding:"required,min=1"`
}

// Example is one labelled piece of text
type Example struct {
	Text string `json:"text"`
}

// RemoteClassifier is a workspace as reported by the remote service
type RemoteClassifier struct {
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Language    string    `json:"language"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	Status      string    `json:"status"`
}

type workspaceRequest struct {
	Name            string   `json:"name"`
	Language        string   `json:"language"`
	Intents         []Intent `json:"intents"`
	DialogNodes     []any    `json:"dialog_nodes"`
	Counterexamples []any    `json:"counterexamples"`
	Entities        []any    `json:"entities"`
	Metadata        struct {
		CreatedBy string `json:"createdby"`
	} `json:"metadata"`
}

type workspaceList struct {
	Workspaces []RemoteClassifier `json:"workspaces"`
	Pagination struct {
		NextCursor string `json:"next_cursor"`
	} `json:"pagination"`
}

// Client implements Service over HTTP
type Client struct {
	httpClient *http.Client
	iamURL     string

	mu     sync.Mutex
	tokens map[string]oauth2.TokenSource
}

// NewClient creates a remote service client
func NewClient(cfg config.TrainingConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		iamURL:     cfg.IAMURL,
		tokens:     make(map[string]oauth2.TokenSource),
	}
}

// CreateClassifier trains a new workspace
func (c *Client) CreateClassifier(ctx context.Context, creds models.ServiceCredentials, spec *TrainingSpec) (*RemoteClassifier, error) {
	var out RemoteClassifier
	if err := c.do(ctx, creds, http.MethodPost, "/v1/workspaces", nil, newWorkspaceRequest(spec), &out); err != nil {
		return nil, err
	}
	return normalise(&out), nil
}

// UpdateClassifier replaces the training data of an existing workspace
func (c *Client) UpdateClassifier(ctx context.Context, creds models.ServiceCredentials, externalID string, spec *TrainingSpec) (*RemoteClassifier, error) {
	var out RemoteClassifier
	path := "/v1/workspaces/" + url.PathEscape(externalID)
	if err := c.do(ctx, creds, http.MethodPost, path, nil, newWorkspaceRequest(spec), &out); err != nil {
		return nil, err
	}
	if out.WorkspaceID == "" {
		out.WorkspaceID = externalID
	}
	return normalise(&out), nil
}

// DeleteClassifier removes a workspace. A workspace that is already gone is
// treated as deleted.
func (c *Client) DeleteClassifier(ctx context.Context, creds models.ServiceCredentials, externalID string) error {
	err := c.do(ctx, creds, http.MethodDelete, "/v1/workspaces/"+url.PathEscape(externalID), nil, nil, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// GetClassifier fetches the current state of a workspace
func (c *Client) GetClassifier(ctx context.Context, creds models.ServiceCredentials, externalID string) (*RemoteClassifier, error) {
	var out RemoteClassifier
	if err := c.do(ctx, creds, http.MethodGet, "/v1/workspaces/"+url.PathEscape(externalID), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.WorkspaceID == "" {
		out.WorkspaceID = externalID
	}
	return &out, nil
}

// ListClassifiers returns every workspace the credentials can see
func (c *Client) ListClassifiers(ctx context.Context, creds models.ServiceCredentials) ([]RemoteClassifier, error) {
	var all []RemoteClassifier
	cursor := ""
	for {
		query := url.Values{"page_limit": {fmt.Sprint(workspaceListLimit)}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		var page workspaceList
		if err := c.do(ctx, creds, http.MethodGet, "/v1/workspaces", query, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Workspaces...)
		if page.Pagination.NextCursor == "" || page.Pagination.NextCursor == cursor {
			return all, nil
		}
		cursor = page.Pagination.NextCursor
	}
}

// WorkspaceURL is the address of a workspace on the service the credentials belong to
func WorkspaceURL(creds models.ServiceCredentials, externalID string) string {
	return strings.TrimRight(creds.Fields().URL, "/") + "/v1/workspaces/" + externalID
}

func newWorkspaceRequest(spec *TrainingSpec) *workspaceRequest {
	language := spec.Language
	if language == "" {
		language = "en"
	}
	intents := make([]Intent, len(spec.Intents))
	for i, in := range spec.Intents {
		intents[i] = Intent{Intent: strings.Join(strings.Fields(in.Intent), "_"), Examples: in.Examples}
	}
	req := &workspaceRequest{
		Name:            spec.Name,
		Language:        language,
		Intents:         intents,
		DialogNodes:     []any{},
		Counterexamples: []any{},
		Entities:        []any{},
	}
	req.Metadata.CreatedBy = userAgent
	return req
}

func normalise(rc *RemoteClassifier) *RemoteClassifier {
	if rc.Status == "" {
		rc.Status = "Training"
	}
	return rc
}

func (c *Client) do(ctx context.Context, creds models.ServiceCredentials, method, path string, query url.Values, body, out any) error {
	fields := creds.Fields()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(fields.URL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Watson-Learning-Opt-Out", "true")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if query == nil {
		query = url.Values{}
	}
	if err := c.authorize(req, fields, query); err != nil {
		return err
	}
	req.URL.RawQuery = query.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServiceError{Message: err.Error(), Err: ErrServiceUnavailable}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classifyResponse(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Message: "failed to decode response: " + err.Error(), Err: ErrUnexpectedResponse}
	}
	return nil
}

func (c *Client) authorize(req *http.Request, fields *models.CredentialFields, query url.Values) error {
	if fields.CredentialsType == models.CredentialsLegacy {
		req.SetBasicAuth(fields.Username, fields.Password)
		query.Set("version", legacyAPIVersion)
		return nil
	}

	token, err := c.tokenSource(fields.APIKey()).Token()
	if err != nil {
		return err
	}
	token.SetAuthHeader(req)
	query.Set("version", iamAPIVersion)
	return nil
}

func (c *Client) tokenSource(apiKey string) oauth2.TokenSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.tokens[apiKey]; ok {
		return ts
	}
	ts := oauth2.ReuseTokenSourceWithExpiry(nil, &iamTokenSource{
		client: c.httpClient,
		url:    c.iamURL,
		apiKey: apiKey,
	}, tokenRefreshEarly)
	c.tokens[apiKey] = ts
	return ts
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func classifyResponse(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		switch {
		case eb.Error != "":
			message = eb.Error
		case eb.Message != "":
			message = eb.Message
		}
	}

	se := &ServiceError{StatusCode: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		se.Err = ErrBadCredentials
	case status == http.StatusNotFound:
		se.Err = ErrNotFound
	case status == http.StatusTooManyRequests:
		se.Err = ErrRateLimited
	case status == http.StatusBadRequest && strings.Contains(message, workspaceLimitMessage):
		se.Err = ErrWorkspaceLimit
	case status == http.StatusBadRequest && strings.Contains(message, skillInUseMessage):
		se.Err = ErrSkillInUse
	case status >= 500:
		se.Err = ErrServiceUnavailable
	default:
		se.Err = ErrUnexpectedResponse
	}
	return se
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
