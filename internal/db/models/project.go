// Package models - project.go defines student projects and the closed set of project types.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ProjectType is the kind of model a project trains.
type ProjectType string

const (
	ProjectText    ProjectType = "text"
	ProjectNumbers ProjectType = "numbers"
	ProjectImages  ProjectType = "images"
	ProjectSounds  ProjectType = "sounds"
	// ProjectImgTfjs are image projects trained in the browser.
	ProjectImgTfjs ProjectType = "imgtfjs"
)

// ErrInvalidProjectType is returned for strings outside the known project types.
var ErrInvalidProjectType = errors.New("invalid project type")

// ParseProjectType converts a stored or user supplied project type.
func ParseProjectType(s string) (ProjectType, error) {
	switch pt := ProjectType(s); pt {
	case ProjectText, ProjectNumbers, ProjectImages, ProjectSounds, ProjectImgTfjs:
		return pt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidProjectType, s)
	}
}

// Project is a student's project. Only the columns the lifecycle code needs are mapped.
type Project struct {
	ID       string      `db:"id" json:"id"`
	UserID   string      `db:"user_id" json:"userid"`
	ClassID  string      `db:"class_id" json:"classid"`
	Type     ProjectType `db:"type" json:"type"`
	Name     string      `db:"name" json:"name"`
	Language string      `db:"language" json:"language"`
	Created  time.Time   `db:"created" json:"created"`
}
