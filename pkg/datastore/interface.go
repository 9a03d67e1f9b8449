// Package datastore persists username/password credentials.
package datastore

import (
	"errors"

	"github.com/NicolasHaas/gochat/pkg/model"
)

var ErrUsernameTaken = errors.New("datastore: username taken")

// ErrInvalidCredentials is returned for both unknown users and wrong
// passwords; the two cases are deliberately indistinguishable to callers.
var ErrInvalidCredentials = errors.New("datastore: invalid credentials")

var ErrPasswordEmpty = errors.New("datastore: password must not be empty")

// Store defines the credential persistence interface. Implementations include
// the default SQLite store and an in-memory mirror for tests. All methods are
// safe for concurrent use.
type Store interface {
	// Close closes the underlying storage.
	Close() error

	// CreateUser registers a new credential pair. Username and password are
	// trimmed first; empty fields and invalid usernames are rejected, and an
	// existing username yields ErrUsernameTaken.
	CreateUser(username, password string) (*model.User, error)

	// Authenticate checks a credential pair against the stored record.
	// Any mismatch yields ErrInvalidCredentials.
	Authenticate(username, password string) error

	// ListUsers returns all registered users ordered by username.
	ListUsers() ([]model.User, error)
}

// Compile-time checks.
var _ Store = (*SQL)(nil)
var _ Store = (*Memory)(nil)
