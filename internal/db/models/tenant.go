// Package models - tenant.go defines per-class policy.
package models

import (
	"fmt"
	"strings"
)

// TenantType decides where a class gets its ML service credentials from.
type TenantType int

const (
	// UnManaged classes supply their own credentials.
	UnManaged TenantType = iota
	// Managed classes use credentials that were provisioned for them.
	Managed
	// ManagedPool classes borrow from the shared credentials pool.
	ManagedPool
)

func (t TenantType) String() string {
	switch t {
	case UnManaged:
		return "unmanaged"
	case Managed:
		return "managed"
	case ManagedPool:
		return "managed-pool"
	default:
		return fmt.Sprintf("TenantType(%d)", int(t))
	}
}

// CredentialsSource reports which credentials table classifiers created for
// this tenant reference.
func (t TenantType) CredentialsSource() (CredentialsSource, error) {
	switch t {
	case ManagedPool:
		return SourcePool, nil
	case UnManaged, Managed:
		return SourceClass, nil
	default:
		return 0, fmt.Errorf("unknown tenant type %d", int(t))
	}
}

// Default policy for classes without a tenants row.
const (
	DefaultMaxUsers             = 30
	DefaultMaxProjectsPerUser   = 3
	DefaultTextClassifierExpiry = 24
)

// ClassTenant is the policy row for a class.
type ClassTenant struct {
	ID                   string     `db:"id" json:"id"`
	ProjectTypes         string     `db:"project_types" json:"-"`
	TenantType           TenantType `db:"tenant_type" json:"tenantType"`
	MaxUsers             int        `db:"max_users" json:"maxUsers"`
	MaxProjectsPerUser   int        `db:"max_projects_per_user" json:"maxProjectsPerUser"`
	TextClassifierExpiry int        `db:"text_classifier_expiry" json:"textClassifierExpiry"`
}

// DefaultClassTenant returns the policy applied to a class with no tenants row.
func DefaultClassTenant(classID string) *ClassTenant {
	return &ClassTenant{
		ID:                   classID,
		ProjectTypes:         "text,imgtfjs,numbers,sounds",
		TenantType:           UnManaged,
		MaxUsers:             DefaultMaxUsers,
		MaxProjectsPerUser:   DefaultMaxProjectsPerUser,
		TextClassifierExpiry: DefaultTextClassifierExpiry,
	}
}

// SupportedProjectTypes parses the comma separated project_types column,
// skipping entries that are not known project types.
func (t *ClassTenant) SupportedProjectTypes() []ProjectType {
	var types []ProjectType
	for _, s := range strings.Split(t.ProjectTypes, ",") {
		pt, err := ParseProjectType(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		types = append(types, pt)
	}
	return types
}

// CredentialsRef tags a credentials id with the table this tenant resolves it against.
func (t *ClassTenant) CredentialsRef(credentialsID string) (CredentialsRef, error) {
	src, err := t.TenantType.CredentialsSource()
	if err != nil {
		return CredentialsRef{}, err
	}
	return CredentialsRef{ID: credentialsID, Source: src}, nil
}
