// Package models - classifier.go defines the bookkeeping rows for trained models.
package models

import "time"

// Classifier is a text model hosted by the remote service. CredentialsID
// points into credentials or credentials_pool depending on the class tenant type.
type Classifier struct {
	ID            string    `db:"id" json:"id"`
	CredentialsID string    `db:"credentials_id" json:"credentialsid"`
	ProjectID     string    `db:"project_id" json:"projectid"`
	UserID        string    `db:"user_id" json:"userid"`
	ClassID       string    `db:"class_id" json:"classid"`
	ServiceType   string    `db:"service_type" json:"servicetype"`
	ExternalID    string    `db:"external_id" json:"workspace_id"`
	URL           string    `db:"url" json:"url"`
	Name          string    `db:"name" json:"name"`
	Language      string    `db:"language" json:"language"`
	Created       time.Time `db:"created" json:"created"`
	Updated       time.Time `db:"updated" json:"updated"`
	Expiry        time.Time `db:"expiry" json:"expiry"`
}

// MaxTextClassifierExpiry is the longest a class may keep text classifiers, in hours.
const MaxTextClassifierExpiry = 255

// ValidTextClassifierExpiry reports whether hours is an accepted class policy
func ValidTextClassifierExpiry(hours int) bool {
	return hours > 0 && hours <= MaxTextClassifierExpiry
}

// ExpiryFrom returns the expiry for a classifier last trained at updated
// under a tenant that keeps text classifiers for hours. Hours are capped at
// MaxTextClassifierExpiry.
func ExpiryFrom(updated time.Time, hours int) time.Time {
	if hours > MaxTextClassifierExpiry {
		hours = MaxTextClassifierExpiry
	}
	return updated.Add(time.Duration(hours) * time.Hour)
}

// LastTrained returns when the classifier was last trained. Rows written
// before retrains were tracked fall back to the creation time.
func (c *Classifier) LastTrained() time.Time {
	if c.Updated.IsZero() {
		return c.Created
	}
	return c.Updated
}

// NumbersClassifierStatus mirrors the training state of a numbers model.
type NumbersClassifierStatus int

const (
	NumbersTraining NumbersClassifierStatus = iota
	NumbersAvailable
	NumbersFailed
)

// NumbersClassifier records a numbers model trained by the in-house service.
type NumbersClassifier struct {
	ProjectID string                  `db:"project_id" json:"projectid"`
	UserID    string                  `db:"user_id" json:"userid"`
	ClassID   string                  `db:"class_id" json:"classid"`
	Created   time.Time               `db:"created" json:"created"`
	Status    NumbersClassifierStatus `db:"status" json:"status"`
}
