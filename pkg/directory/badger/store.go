// Package badger provides a BadgerDB-backed implementation of the directory
// Store interface for persistent deployments.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/resignhq/resign/pkg/directory"
	"github.com/resignhq/resign/pkg/identity"
)

// Key namespace: accounts live under "a:<username>". The prefix leaves room
// for future record types in the same database without key collisions.
const prefixAccount = "a:"

// keyAccount generates the database key for an account.
func keyAccount(username string) []byte {
	return []byte(prefixAccount + username)
}

// record is the stored shape of an account. The password hash is persisted
// here (unlike the JSON view of identity.Account, which hides it from any
// outbound serialization).
type record struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	PhoneNumber  string `json:"phone_number"`
	Role         string `json:"role"`
}

func encodeAccount(a *identity.Account) ([]byte, error) {
	return json.Marshal(record{
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		PhoneNumber:  a.PhoneNumber,
		Role:         string(a.Role),
	})
}

func decodeAccount(data []byte) (*identity.Account, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode account record: %w", err)
	}
	return &identity.Account{
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		PhoneNumber:  r.PhoneNumber,
		Role:         identity.Role(r.Role),
	}, nil
}

// Store is a BadgerDB-backed account store.
type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) a Badger database at the given path.
func Open(path string) (*Store, error) {
	opts := badgerdb.DefaultOptions(path)
	// Badger logs through its own logger by default; silence it so all
	// output goes through the structured logger at the call sites.
	opts.Logger = nil

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database at %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Get returns the account for the given username.
func (s *Store) Get(ctx context.Context, username string) (*identity.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var account *identity.Account
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyAccount(username))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return directory.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			var decErr error
			account, decErr = decodeAccount(val)
			return decErr
		})
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// Create inserts a new account. The existence check and the set run inside
// a single Badger update transaction, so concurrent Create calls for the
// same username serialize and exactly one succeeds.
func (s *Store) Create(ctx context.Context, account *identity.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := keyAccount(account.Username)

		_, err := txn.Get(key)
		if err == nil {
			return directory.ErrAccountExists
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		data, err := encodeAccount(account)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Put writes the full account record, overwriting any previous value.
func (s *Store) Put(ctx context.Context, account *identity.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		data, err := encodeAccount(account)
		if err != nil {
			return err
		}
		return txn.Set(keyAccount(account.Username), data)
	})
}

// ListProjections returns the redacted view of every account in key order.
func (s *Store) ListProjections(ctx context.Context) ([]identity.Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var projections []identity.Projection
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixAccount)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				account, err := decodeAccount(val)
				if err != nil {
					return err
				}
				projections = append(projections, account.Projection())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return projections, nil
}

// Count returns the number of stored accounts.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixAccount)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Close closes the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}
