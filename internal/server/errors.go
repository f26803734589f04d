package server

import "errors"

// Kind classifies the domain errors a gated action can produce. Every kind
// maps to a single short failure reply; the connection stays usable.
type Kind int

const (
	KindUnauthenticated Kind = iota
	KindForbidden
	KindInvalidInput
	KindNotFound
	KindConflict
	KindStore
)

// String returns the metrics/log label for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStore:
		return "store_error"
	default:
		return "unknown"
	}
}

// DomainError is a client-reportable action failure. Message is the fixed
// human-readable string sent on the wire; it never carries internal error
// detail.
type DomainError struct {
	Kind    Kind
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// The fixed failure messages. These are the only failure strings that ever
// cross the wire.
var (
	errUnauthenticated = &DomainError{Kind: KindUnauthenticated, Message: "unauthenticated"}
	errForbidden       = &DomainError{Kind: KindForbidden, Message: "forbidden"}
	errInvalidUsername = &DomainError{Kind: KindInvalidInput, Message: "Invalid username"}
	errInvalidPassword = &DomainError{Kind: KindInvalidInput, Message: "Invalid password"}
	errInvalidPhone    = &DomainError{Kind: KindInvalidInput, Message: "Invalid phone number"}
	errInvalidRole     = &DomainError{Kind: KindInvalidInput, Message: "Invalid role"}
	errTargetNotFound  = &DomainError{Kind: KindNotFound, Message: "Target user not found"}
	errUserExists      = &DomainError{Kind: KindConflict, Message: "User already exists"}
	errAlreadyLoggedIn = &DomainError{Kind: KindConflict, Message: "You are already logged in"}
	errNotLoggedIn     = &DomainError{Kind: KindUnauthenticated, Message: "You are not logged in"}
	errAuthFailed      = &DomainError{Kind: KindUnauthenticated, Message: "Authentication failed"}
	errInternal        = &DomainError{Kind: KindStore, Message: "Internal server error"}
)

// ErrClientExit signals that the client selected the explicit Exit action.
// It is a termination signal, not a failure: the session loop uses it to
// close the connection gracefully and it is logged as a normal close.
var ErrClientExit = errors.New("client requested exit")
