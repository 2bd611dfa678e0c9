// Package remote defines the catalog the sync engine downloads frames from.
//
// A Catalog opens Sessions; a Session lists remote directories and fetches
// files by path. Every call may fail, and callers treat each failure as
// transient.
package remote

import (
	"context"
	"errors"
	"path"
)

// ErrNotFound is returned when a fetched path does not exist on the remote.
var ErrNotFound = errors.New("remote file not found")

// Catalog connects to a remote file server.
type Catalog interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is one authenticated connection to the remote server.
type Session interface {
	// List returns the base names of the files in dir.
	List(dir string) ([]string, error)
	// Fetch returns the contents of the file at the given path.
	Fetch(p string) ([]byte, error)
	// Close ends the session. It is safe to call once after any failure.
	Close() error
}

// Join builds a remote path from a directory and a file name.
func Join(dir, name string) string {
	return path.Join(dir, name)
}
