// Package models - pending_job.go defines queued object store cleanup work.
package models

import (
	"database/sql"
	"fmt"
	"strings"
)

// JobType identifies what a pending job deletes.
type JobType int

const (
	JobDeleteObject JobType = iota + 1
	JobDeleteProjectObjects
	JobDeleteUserObjects
	JobDeleteClassObjects
)

func (t JobType) String() string {
	switch t {
	case JobDeleteObject:
		return "delete_object"
	case JobDeleteProjectObjects:
		return "delete_project_objects"
	case JobDeleteUserObjects:
		return "delete_user_objects"
	case JobDeleteClassObjects:
		return "delete_class_objects"
	default:
		return fmt.Sprintf("JobType(%d)", int(t))
	}
}

// ObjectSpec addresses an object, or a prefix of objects, in the object store.
// Which fields are required depends on the job type.
type ObjectSpec struct {
	ClassID   string `json:"classid"`
	UserID    string `json:"userid,omitempty"`
	ProjectID string `json:"projectid,omitempty"`
	ObjectID  string `json:"objectid,omitempty"`
}

// Key returns the object store key (or key prefix, without a trailing
// separator) for the populated fields: class/user/project/object.
func (s ObjectSpec) Key() string {
	parts := []string{s.ClassID}
	for _, p := range []string{s.UserID, s.ProjectID, s.ObjectID} {
		if p == "" {
			break
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "/")
}

// PendingJob is a durable cleanup action. Attempts counts failed executions.
type PendingJob struct {
	ID          int64        `json:"id"`
	JobType     JobType      `json:"jobType"`
	Data        ObjectSpec   `json:"jobData"`
	Attempts    int          `json:"attempts"`
	LastAttempt sql.NullTime `json:"lastAttempt"`
}
