// Package models - scratch_key.go defines the capability handed to Scratch projects.
package models

import (
	"database/sql"
	"time"
)

// ScratchKey lets client code train and classify against a project without
// holding service credentials. There is at most one per (user, project, class).
// A key with no classifier is untrained.
type ScratchKey struct {
	ID              string         `db:"id" json:"id"`
	ProjectID       string         `db:"project_id" json:"projectid"`
	ProjectName     string         `db:"project_name" json:"name"`
	ProjectType     ProjectType    `db:"project_type" json:"type"`
	UserID          string         `db:"user_id" json:"userid"`
	ClassID         string         `db:"class_id" json:"classid"`
	CredentialsID   sql.NullString `db:"credentials_id" json:"-"`
	ServiceURL      sql.NullString `db:"service_url" json:"-"`
	ServiceUsername sql.NullString `db:"service_username" json:"-"`
	ServicePassword sql.NullString `db:"service_password" json:"-"`
	ClassifierID    sql.NullString `db:"classifier_id" json:"-"`
	Updated         time.Time      `db:"updated" json:"updated"`
}

// IsTrained reports whether the key currently points at a classifier.
func (k *ScratchKey) IsTrained() bool {
	return k.ClassifierID.Valid && k.ClassifierID.String != ""
}
