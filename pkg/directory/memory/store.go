// Package memory provides an in-memory implementation of the directory
// Store interface. All data is lost on restart; it exists for tests,
// development, and single-shot tooling.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/resignhq/resign/pkg/directory"
	"github.com/resignhq/resign/pkg/identity"
)

// Store is a mutex-guarded map keyed by canonical username.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*identity.Account
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*identity.Account),
	}
}

// copyAccount returns a copy of the account to prevent external mutation of
// stored records.
func copyAccount(a *identity.Account) *identity.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Get returns the account for the given username.
func (s *Store) Get(ctx context.Context, username string) (*identity.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[username]
	if !ok {
		return nil, directory.ErrAccountNotFound
	}
	return copyAccount(account), nil
}

// Create inserts a new account. The existence check and the insert happen
// under a single write lock, so concurrent Create calls for the same
// username cannot both succeed.
func (s *Store) Create(ctx context.Context, account *identity.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.Username]; exists {
		return directory.ErrAccountExists
	}
	s.accounts[account.Username] = copyAccount(account)
	return nil
}

// Put overwrites the full record for the account's username.
func (s *Store) Put(ctx context.Context, account *identity.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.Username] = copyAccount(account)
	return nil
}

// ListProjections returns the redacted view of every account in map order.
func (s *Store) ListProjections(ctx context.Context) ([]identity.Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	projections := make([]identity.Projection, 0, len(s.accounts))
	for _, account := range s.accounts {
		projections = append(projections, account.Projection())
	}
	// Key order for listings, matching the persistent backend.
	sort.Slice(projections, func(i, j int) bool {
		return projections[i].Username < projections[j].Username
	})
	return projections, nil
}

// Count returns the number of stored accounts.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
