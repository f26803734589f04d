// Package directory defines the keyed account persistence contract used by
// the session server.
//
// The store is the only mutable state shared between sessions. Reads and
// writes from different sessions may interleave arbitrarily, so every
// implementation must be safe for concurrent use and Create must be atomic:
// two concurrent Create calls for the same username must never both succeed.
package directory

import (
	"context"
	"errors"

	"github.com/resignhq/resign/pkg/identity"
)

// Common errors for Store operations.
var (
	// ErrAccountNotFound is returned by Get when the username has no account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned by Create when the username is taken.
	ErrAccountExists = errors.New("account already exists")
)

// Store provides account persistence keyed by canonical-lowercase username.
//
// Implementations must be thread-safe as methods are called concurrently
// from multiple session goroutines.
type Store interface {
	// Get returns the account for the given username.
	// Returns ErrAccountNotFound if no such account exists.
	Get(ctx context.Context, username string) (*identity.Account, error)

	// Create inserts a new account. The existence check and the insert are
	// a single atomic step; returns ErrAccountExists if the username is
	// already taken, including under concurrent Create races.
	Create(ctx context.Context, account *identity.Account) error

	// Put writes the full account record, overwriting any previous record
	// for the same username. Last writer wins; there is no field-level
	// merge.
	Put(ctx context.Context, account *identity.Account) error

	// ListProjections returns the redacted client-visible view of every
	// account, in store-defined order.
	ListProjections(ctx context.Context) ([]identity.Projection, error)

	// Count returns the number of stored accounts.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying resources.
	Close() error
}
