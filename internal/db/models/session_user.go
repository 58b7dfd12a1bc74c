// Package models - session_user.go defines temporary "try it now" users.
package models

import "time"

// SessionUsersClass is the class every session user belongs to.
const SessionUsersClass = "session-users"

// TemporaryUser is a session user. Token is the only secret and
// SessionExpiry is authoritative: an expired user is treated as absent.
type TemporaryUser struct {
	ID            string    `db:"id" json:"id"`
	Token         string    `db:"token" json:"token"`
	SessionExpiry time.Time `db:"session_expiry" json:"sessionExpiry"`
}

// Expired reports whether the session has lapsed at now.
func (u *TemporaryUser) Expired(now time.Time) bool {
	return u.SessionExpiry.Before(now)
}
