package training

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const iamGrantType = "urn:ibm:params:oauth:grant-type:apikey"

// iamTokenSource exchanges an API key for an IAM access token. It is wrapped
// in an oauth2 reuse source so a token is fetched only when the cached one is
// close to expiry.
type iamTokenSource struct {
	client *http.Client
	url    string
	apiKey string
}

type iamTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Expiration  int64  `json:"expiration"`
}

func (s *iamTokenSource) Token() (*oauth2.Token, error) {
	form := url.Values{
		"grant_type": {iamGrantType},
		"apikey":     {s.apiKey},
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: "token request failed: " + err.Error(), Err: ErrServiceUnavailable}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: err.Error(), Err: ErrServiceUnavailable}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "api key rejected", Err: ErrBadCredentials}
	case resp.StatusCode >= 300:
		return nil, classifyResponse(resp.StatusCode, body)
	}

	var tr iamTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: "invalid token response", Err: ErrUnexpectedResponse}
	}

	token := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: tr.TokenType}
	switch {
	case tr.Expiration > 0:
		token.Expiry = time.Unix(tr.Expiration, 0)
	case tr.ExpiresIn > 0:
		token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}
