package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default cost parameter for bcrypt hashing.
// Cost 10 provides a good balance between security and performance.
const DefaultBcryptCost = 10

// DummyDigest is a well-formed bcrypt digest of a throwaway password.
//
// When a login attempt names a username that does not exist, the login flow
// still runs exactly one verification against this digest before replying
// failure. This keeps the observable latency and operation count of an
// unknown-username attempt identical to a wrong-password attempt, closing a
// username-enumeration timing channel. It must never be stored on a real
// account.
const DummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// ErrInvalidCredentials is returned when credentials are invalid.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier is the opaque password hash/verify primitive used by the session
// server. The production implementation is bcrypt; tests substitute counting
// or failing implementations.
type Verifier interface {
	// Hash derives a storable digest from a plaintext password.
	Hash(password string) (string, error)

	// Verify reports whether the password matches the digest. A malformed
	// digest and a wrong password are indistinguishable to the caller
	// beyond the boolean failure signal.
	Verify(password, digest string) (bool, error)
}

// BcryptVerifier implements Verifier with golang.org/x/crypto/bcrypt.
type BcryptVerifier struct {
	// Cost is the bcrypt cost parameter. Zero means DefaultBcryptCost.
	Cost int
}

// Hash creates a bcrypt hash of the given password.
func (v BcryptVerifier) Hash(password string) (string, error) {
	cost := v.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify checks a password against a bcrypt digest.
//
// A mismatch returns (false, nil). Any other bcrypt error (malformed digest,
// truncated salt) also returns false; the error is surfaced so callers can
// log it, but it carries no signal usable to distinguish failure causes on
// the wire.
func (v BcryptVerifier) Verify(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
