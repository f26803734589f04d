package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/resignhq/resign/internal/protocol"
	"github.com/resignhq/resign/pkg/directory"
	"github.com/resignhq/resign/pkg/identity"
	"github.com/resignhq/resign/pkg/metrics"
	"github.com/resignhq/resign/pkg/policy"
)

// Dispatcher routes parsed action selectors to their handlers and enforces
// the universal gating order.
//
// Every gated action evaluates its gates in the same fixed sequence:
//
//  1. Authentication  — anonymous session on a gated action
//  2. Authorization   — policy gate deny for (role, resource)
//  3. Referential     — target existence / non-existence
//  4. Input format    — validation of client-supplied fields
//  5. Effect          — persistence, then the single success reply
//
// Authentication and authorization run strictly before any lookup of a
// client-named target, so an unauthorized caller can never learn whether an
// account exists.
type Dispatcher struct {
	store    directory.Store
	gate     *policy.Gate
	verifier identity.Verifier
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(store directory.Store, gate *policy.Gate, verifier identity.Verifier) *Dispatcher {
	return &Dispatcher{
		store:    store,
		gate:     gate,
		verifier: verifier,
	}
}

// Dispatch executes one action for the session.
//
// Domain failures are consumed here: the handler sends its single failure
// reply and Dispatch returns nil, leaving the connection usable. A non-nil
// return is connection-fatal (channel failure) or the explicit ErrClientExit
// termination signal.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, action protocol.Action) error {
	var reply protocol.Reply
	var err error

	switch action {
	case protocol.ActionShowUsers:
		reply, err = d.handleShowUsers(ctx, s)
	case protocol.ActionChangeOwnPhone:
		reply, err = d.handleChangeOwnPhone(ctx, s)
	case protocol.ActionChangePhone:
		reply, err = d.handleChangePhone(ctx, s)
	case protocol.ActionAddUser:
		reply, err = d.handleAddUser(ctx, s)
	case protocol.ActionLogin:
		reply, err = d.handleLogin(ctx, s)
	case protocol.ActionLogout:
		reply, err = d.handleLogout(ctx, s)
	case protocol.ActionExit:
		metrics.ActionsTotal.WithLabelValues(action.Name(), "ok").Inc()
		return ErrClientExit
	default:
		return fmt.Errorf("unhandled action %v", action)
	}

	if err != nil {
		// Parameter read failed; no reply is meaningful.
		metrics.ActionsTotal.WithLabelValues(action.Name(), "protocol_error").Inc()
		return err
	}

	metrics.ActionsTotal.WithLabelValues(action.Name(), outcomeLabel(reply)).Inc()
	return s.channel.SendReply(reply)
}

// outcomeLabel derives the metrics outcome label from the reply.
func outcomeLabel(reply protocol.Reply) string {
	if reply.IsOK() {
		return "ok"
	}
	return "failure"
}

// role returns the policy role of the session: the account's role when
// authenticated, the anonymous pseudo-role otherwise. The account is nil
// for anonymous sessions.
func (d *Dispatcher) role(ctx context.Context, s *Session) (string, *identity.Account, *DomainError) {
	if s.Anonymous() {
		return policy.RoleAnonymous, nil, nil
	}

	account, err := d.store.Get(ctx, s.Username())
	if err != nil {
		// An authenticated session must resolve to a stored account.
		// Hitting this is an internal invariant violation, not a
		// client-facing condition.
		s.log.Error("authenticated session has no backing account",
			"username", s.Username(), "error", err)
		return "", nil, errInternal
	}
	return string(account.Role), account, nil
}

// authorize runs gating phases 1 and 2 for an action that requires an
// authenticated caller. It returns the caller's account on success.
func (d *Dispatcher) authorize(ctx context.Context, s *Session, resource string) (*identity.Account, *DomainError) {
	if s.Anonymous() {
		s.log.Warn("access denied to anonymous session", "resource", resource)
		return nil, errUnauthenticated
	}

	role, account, derr := d.role(ctx, s)
	if derr != nil {
		return nil, derr
	}

	if !d.gate.Evaluate(role, resource) {
		s.log.Warn("access forbidden", "username", s.Username(), "role", role, "resource", resource)
		return nil, errForbidden
	}

	return account, nil
}

// handleShowUsers returns the redacted projection of every account.
//
// The action is policy-gated but does not require authentication: anonymous
// sessions are evaluated under the anonymous pseudo-role, so whether they
// may list users is purely a policy decision.
func (d *Dispatcher) handleShowUsers(ctx context.Context, s *Session) (protocol.Reply, error) {
	role, _, derr := d.role(ctx, s)
	if derr != nil {
		return protocol.Failure(derr.Message), nil
	}

	if !d.gate.Evaluate(role, policy.ResourceShowUsers) {
		s.log.Warn("access forbidden", "role", role, "resource", policy.ResourceShowUsers)
		return protocol.Failure(errForbidden.Message), nil
	}

	projections, err := d.store.ListProjections(ctx)
	if err != nil {
		s.log.Error("listing users failed", "error", err)
		return protocol.Failure(errInternal.Message), nil
	}

	users := make([]protocol.UserEntry, 0, len(projections))
	for _, p := range projections {
		users = append(users, protocol.UserEntry{
			Username:    p.Username,
			PhoneNumber: p.PhoneNumber,
		})
	}
	return protocol.OKUsers(users), nil
}

// handleChangeOwnPhone updates the caller's own phone number.
func (d *Dispatcher) handleChangeOwnPhone(ctx context.Context, s *Session) (protocol.Reply, error) {
	phone, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}

	account, derr := d.authorize(ctx, s, policy.ResourceChangeOwnPhone)
	if derr != nil {
		return protocol.Failure(derr.Message), nil
	}

	if !identity.ValidPhone(phone) {
		s.log.Warn("own phone change with invalid number", "username", s.Username())
		return protocol.Failure(errInvalidPhone.Message), nil
	}

	account.PhoneNumber = phone
	if err := d.store.Put(ctx, account); err != nil {
		s.log.Error("storing phone change failed", "username", s.Username(), "error", err)
		return protocol.Failure(errInternal.Message), nil
	}

	s.log.Info("changed own phone", "username", s.Username())
	return protocol.OK(), nil
}

// handleChangePhone updates another account's phone number.
//
// Authorization is evaluated strictly before the target lookup: a caller
// who is not allowed to change phones receives the same reply whether or
// not the target exists.
func (d *Dispatcher) handleChangePhone(ctx context.Context, s *Session) (protocol.Reply, error) {
	targetName, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}
	phone, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}
	targetName = identity.NormalizeUsername(targetName)

	if _, derr := d.authorize(ctx, s, policy.ResourceChangePhone); derr != nil {
		return protocol.Failure(derr.Message), nil
	}

	target, err := d.store.Get(ctx, targetName)
	if errors.Is(err, directory.ErrAccountNotFound) {
		s.log.Warn("phone change for missing account", "username", s.Username(), "target", targetName)
		return protocol.Failure(errTargetNotFound.Message), nil
	}
	if err != nil {
		s.log.Error("loading target account failed", "target", targetName, "error", err)
		return protocol.Failure(errInternal.Message), nil
	}

	if !identity.ValidPhone(phone) {
		s.log.Warn("phone change with invalid number", "username", s.Username(), "target", targetName)
		return protocol.Failure(errInvalidPhone.Message), nil
	}

	target.PhoneNumber = phone
	if err := d.store.Put(ctx, target); err != nil {
		s.log.Error("storing phone change failed", "target", targetName, "error", err)
		return protocol.Failure(errInternal.Message), nil
	}

	s.log.Info("changed phone", "username", s.Username(), "target", targetName)
	return protocol.OK(), nil
}

// handleAddUser creates a new account.
func (d *Dispatcher) handleAddUser(ctx context.Context, s *Session) (protocol.Reply, error) {
	username, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}
	password, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}
	phone, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}
	roleName, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}
	username = identity.NormalizeUsername(username)

	if _, derr := d.authorize(ctx, s, policy.ResourceAddUser); derr != nil {
		return protocol.Failure(derr.Message), nil
	}

	_, err = d.store.Get(ctx, username)
	if err == nil {
		s.log.Warn("add of existing user", "username", s.Username(), "target", username)
		return protocol.Failure(errUserExists.Message), nil
	}
	if !errors.Is(err, directory.ErrAccountNotFound) {
		s.log.Error("existence check failed", "target", username, "error", err)
		return protocol.Failure(errInternal.Message), nil
	}

	// Validation order is fixed: username, password, phone, role. The
	// reply names the first failing field.
	if !identity.ValidUsername(username) {
		s.log.Warn("add user with invalid username", "username", s.Username())
		return protocol.Failure(errInvalidUsername.Message), nil
	}
	if !identity.ValidPassword(password) {
		s.log.Warn("add user with invalid password", "username", s.Username())
		return protocol.Failure(errInvalidPassword.Message), nil
	}
	if !identity.ValidPhone(phone) {
		s.log.Warn("add user with invalid phone number", "username", s.Username())
		return protocol.Failure(errInvalidPhone.Message), nil
	}
	role, roleErr := identity.ParseRole(roleName)
	if roleErr != nil {
		s.log.Warn("add user with invalid role", "username", s.Username())
		return protocol.Failure(errInvalidRole.Message), nil
	}

	digest, err := d.verifier.Hash(password)
	if err != nil {
		s.log.Error("hashing password failed", "error", err)
		return protocol.Failure(errInternal.Message), nil
	}

	account := &identity.Account{
		Username:     username,
		PasswordHash: digest,
		PhoneNumber:  phone,
		Role:         role,
	}
	// Create is atomic: a concurrent add of the same username surfaces
	// here as a conflict even though the earlier existence check passed.
	if err := d.store.Create(ctx, account); err != nil {
		if errors.Is(err, directory.ErrAccountExists) {
			return protocol.Failure(errUserExists.Message), nil
		}
		s.log.Error("storing new account failed", "target", username, "error", err)
		return protocol.Failure(errInternal.Message), nil
	}

	s.log.Info("user added", "username", s.Username(), "target", username, "role", role)
	return protocol.OK(), nil
}

// handleLogin authenticates the session.
func (d *Dispatcher) handleLogin(ctx context.Context, s *Session) (protocol.Reply, error) {
	username, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}
	password, err := s.channel.ReceiveString()
	if err != nil {
		return protocol.Reply{}, err
	}
	username = identity.NormalizeUsername(username)

	if !s.Anonymous() {
		return protocol.Failure(errAlreadyLoggedIn.Message), nil
	}

	account, err := d.store.Get(ctx, username)
	switch {
	case err == nil:
		ok, verifyErr := d.verifier.Verify(password, account.PasswordHash)
		if verifyErr != nil {
			s.log.Error("password verification failed", "error", verifyErr)
		}
		if ok {
			s.Authenticate(username)
			s.log.Info("user logged in", "username", username)
			return protocol.OK(), nil
		}
		s.log.Warn("login failed: invalid credentials", "username", username)

	case errors.Is(err, directory.ErrAccountNotFound):
		// Verify against a fixed dummy digest so an unknown username
		// costs the same observable work as a wrong password. Exactly
		// one verify call happens per login attempt either way.
		if _, verifyErr := d.verifier.Verify(password, identity.DummyDigest); verifyErr != nil {
			s.log.Error("equalizing verification failed", "error", verifyErr)
		}
		s.log.Warn("login failed: unknown user", "username", username)

	default:
		s.log.Error("account lookup failed", "username", username, "error", err)
		return protocol.Failure(errInternal.Message), nil
	}

	metrics.LoginFailures.Inc()
	return protocol.Failure(errAuthFailed.Message), nil
}

// handleLogout clears the session identity.
func (d *Dispatcher) handleLogout(_ context.Context, s *Session) (protocol.Reply, error) {
	if s.Anonymous() {
		return protocol.Failure(errNotLoggedIn.Message), nil
	}

	username := s.Username()
	s.ClearIdentity()
	s.log.Info("user logged out", "username", username)
	return protocol.OK(), nil
}
