// Package identity defines the RESIGN account model and the credential and
// format-validation primitives used by the session server.
package identity

import (
	"fmt"
	"strings"
)

// Role represents the role of an account in the directory.
type Role string

const (
	// RoleStandardUser is a regular employee account with limited permissions.
	RoleStandardUser Role = "StandardUser"
	// RoleHR is a human-resources account with directory management permissions.
	RoleHR Role = "HR"
)

// IsValid checks if the role is a valid Role.
func (r Role) IsValid() bool {
	return r == RoleStandardUser || r == RoleHR
}

// ParseRole converts a wire or config string into a Role.
// The match is exact and case-sensitive, mirroring the selector encoding.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return role, nil
}

// Account represents a directory entry for a single user.
//
// Accounts are keyed by username. Usernames compare case-insensitively; all
// ingress points normalize them with NormalizeUsername before touching the
// store, so stored usernames are always canonical lowercase.
type Account struct {
	// Username is the unique, canonical-lowercase identifier of the account.
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the account's password.
	// It is never serialized to clients; every client-visible view of an
	// account goes through Projection.
	PasswordHash string `json:"-" yaml:"password_hash"`

	// PhoneNumber is the account's phone number in national 0xxxxxxxxx form.
	PhoneNumber string `json:"phone_number"`

	// Role is the account's role (StandardUser or HR).
	Role Role `json:"role"`
}

// Validate checks that the account carries a well-formed record.
func (a *Account) Validate() error {
	if a.Username == "" {
		return fmt.Errorf("username is required")
	}
	if a.Username != NormalizeUsername(a.Username) {
		return fmt.Errorf("username %q is not in canonical form", a.Username)
	}
	if !a.Role.IsValid() {
		return fmt.Errorf("invalid role %q", a.Role)
	}
	return nil
}

// Projection returns the redacted, client-visible view of the account.
func (a *Account) Projection() Projection {
	return Projection{
		Username:    a.Username,
		PhoneNumber: a.PhoneNumber,
	}
}

// Projection is the only account-derived shape ever sent to a client.
// It deliberately has no field for the password hash.
type Projection struct {
	Username    string
	PhoneNumber string
}

// NormalizeUsername folds a username to its canonical lowercase form.
// Username comparison is case-insensitive everywhere in the system.
func NormalizeUsername(username string) string {
	return strings.ToLower(username)
}
