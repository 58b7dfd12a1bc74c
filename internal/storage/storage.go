// Package storage defines the object store interface used to hold student
// training data (images and sounds). The lifecycle service only writes to the
// store in tests and readiness checks; in production it deletes objects left
// behind by removed projects, users and classes.
//
// Objects are addressed by keys of the form class/user/project/object.
// Backends register a constructor with the factory from an init() function in
// their own package, and the main package imports each backend with a blank
// import:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return New(cfg)
//	    })
//	}
package storage

import (
	"context"
	"io"
	"strings"
)

// Storage is implemented by every object store backend
type Storage interface {
	// Upload stores an object under key, replacing any existing object
	Upload(ctx context.Context, key string, reader io.Reader, size int64) error

	// Delete removes one object. Deleting an absent object is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object whose key starts with prefix and
	// returns how many were removed. An empty result is not an error.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)
}

// DirPrefix returns key with a single trailing slash, so that a prefix
// delete for "class/user" never matches "class/user2".
func DirPrefix(key string) string {
	return strings.TrimRight(key, "/") + "/"
}
