// Package storage provides the document-store abstraction the core is built
// on: opaque JSON documents addressed by hierarchical paths such as
// "users/{uid}", "data/{uid}/passwords/{rid}", and "sessions/{sid}".
package storage

import "errors"

var (
	// ErrNotFound is returned when no document exists at the given path.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by SetIfAbsent when a document is already present.
	ErrExists = errors.New("document already exists")
)

// Store defines per-document storage with atomic per-path primitives.
// Implementations guarantee that SetIfAbsent and Update are atomic with
// respect to concurrent writers of the same path; no cross-document
// transaction is offered or assumed.
type Store interface {
	// Get returns the document at path, or ErrNotFound.
	Get(path string) ([]byte, error)
	// Set writes the document at path, creating or overwriting it.
	Set(path string, doc []byte) error
	// SetIfAbsent writes the document only if no document exists at path,
	// returning ErrExists otherwise.
	SetIfAbsent(path string, doc []byte) error
	// Update atomically applies fn to the current document at path and
	// writes back the result. Returns ErrNotFound if the path is absent.
	Update(path string, fn func(doc []byte) ([]byte, error)) error
	// Delete removes the document at path. Deleting an absent path is not
	// an error.
	Delete(path string) error
	// List returns the paths of all documents under the given prefix.
	List(prefix string) ([]string, error)
}
