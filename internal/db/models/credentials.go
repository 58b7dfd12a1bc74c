// Package models - credentials.go defines the credentials used to call the remote
// ML service. Classed credentials belong to one class; pooled credentials are
// shared by every class whose tenant type routes to the pool.
package models

import (
	"fmt"
	"time"
)

// Service types recorded against credentials and classifiers.
const (
	ServiceTypeText    = "conv"
	ServiceTypeNumbers = "num"
)

// CredentialsType records how credentials authenticate with the remote service.
type CredentialsType string

const (
	// CredentialsLegacy are username/password pairs sent with basic auth.
	CredentialsLegacy  CredentialsType = "legacy"
	// CredentialsIAM are API keys exchanged for a bearer token.
	CredentialsIAM     CredentialsType = "iam"
	CredentialsUnknown CredentialsType = "unknown"
)

// DetectCredentialsType classifies a username/password pair by shape: legacy
// service credentials are a 36 character username with a 12 character password.
func DetectCredentialsType(username, password string) CredentialsType {
	if len(username) == 36 && len(password) == 12 {
		return CredentialsLegacy
	}
	return CredentialsIAM
}

// CredentialsSource names the table a credentials id must be looked up in.
type CredentialsSource int

const (
	SourceClass CredentialsSource = iota
	SourcePool
)

func (s CredentialsSource) String() string {
	switch s {
	case SourceClass:
		return "class"
	case SourcePool:
		return "pool"
	default:
		return fmt.Sprintf("CredentialsSource(%d)", int(s))
	}
}

// CredentialsRef is a credentials id tagged with the table it lives in.
type CredentialsRef struct {
	ID     string
	Source CredentialsSource
}

// CredentialFields are the columns shared by classed and pooled credentials.
// Password holds the plaintext secret; it is sealed before it reaches the store.
type CredentialFields struct {
	ID              string          `db:"id" json:"id"`
	ServiceType     string          `db:"service_type" json:"servicetype"`
	URL             string          `db:"url" json:"url"`
	Username        string          `db:"username" json:"-"`
	Password        string          `db:"password" json:"-"`
	CredentialsType CredentialsType `db:"credentials_type" json:"credentialstype"`
	CreatedAt       time.Time       `db:"created_at" json:"created"`
}

// APIKey is the IAM api key for non-legacy credentials, stored split across
// the username and password columns.
func (c *CredentialFields) APIKey() string {
	return c.Username + c.Password
}

// ServiceCredentials is implemented only by *Credentials and *PooledCredentials.
type ServiceCredentials interface {
	Fields() *CredentialFields
	Ref() CredentialsRef
	serviceCredentials()
}

// Credentials are owned by exactly one class.
type Credentials struct {
	CredentialFields
	ClassID string `db:"class_id" json:"classid"`
}

func (c *Credentials) Fields() *CredentialFields { return &c.CredentialFields }
func (c *Credentials) Ref() CredentialsRef { return CredentialsRef{ID: c.ID, Source: SourceClass} }
func (c *Credentials) serviceCredentials() {}

// PooledCredentials are shared across classes. LastFailure orders which
// credential is tried next: oldest first.
type PooledCredentials struct {
	CredentialFields
	LastFailure time.Time `db:"last_failure" json:"lastfail"`
}

func (c *PooledCredentials) Fields() *CredentialFields { return &c.CredentialFields }
func (c *PooledCredentials) Ref() CredentialsRef { return CredentialsRef{ID: c.ID, Source: SourcePool} }
func (c *PooledCredentials) serviceCredentials() {}
