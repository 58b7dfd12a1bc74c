package training

import (
	"errors"
	"fmt"
)

// Errors reported by the remote ML service client
var (
	ErrBadCredentials     = errors.New("remote service rejected the credentials")
	ErrServiceUnavailable = errors.New("remote service unavailable")
	ErrNotFound           = errors.New("remote classifier not found")
	ErrRateLimited        = errors.New("remote service rate limit reached")
	ErrWorkspaceLimit     = errors.New("remote service workspace limit reached")
	ErrSkillInUse         = errors.New("remote workspace is in use by an assistant and cannot be deleted")
	ErrUnexpectedResponse = errors.New("unexpected response from remote service")
)

// Errors reported by the tracker
var (
	// ErrPoolExhausted means every pooled candidate failed
	ErrPoolExhausted = errors.New("no pooled credentials could build the classifier")
	// ErrInsufficientKeys means every class credential hit its workspace limit
	ErrInsufficientKeys = errors.New("class credentials have no room for another classifier")
	// ErrKeysRateLimited means every class credential was rate limited
	ErrKeysRateLimited = errors.New("class credentials are rate limited")
	// ErrModelNotFound means the classifier no longer exists remotely or locally
	ErrModelNotFound = errors.New("classifier not found")
	// ErrUnsupportedProject means the project type has no remote classifier
	ErrUnsupportedProject = errors.New("project type does not use a remote text classifier")
	// ErrInvalidExpiry means a tenant policy update had an expiry outside 1 to 255 hours
	ErrInvalidExpiry = errors.New("text classifier expiry must be a whole number of hours between 1 and 255")
)

// ServiceError describes a failed call to the remote service. Err is one of
// the package sentinels, so callers match with errors.Is.
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Message)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Err, e.StatusCode, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
