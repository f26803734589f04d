package server

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resignhq/resign/internal/protocol"
	"github.com/resignhq/resign/internal/protocol/wire"
	"github.com/resignhq/resign/pkg/directory"
	"github.com/resignhq/resign/pkg/directory/memory"
	"github.com/resignhq/resign/pkg/identity"
	"github.com/resignhq/resign/pkg/policy"
)

// fakeVerifier is a deterministic Verifier that counts Verify invocations,
// so tests can assert the exactly-one-verify-per-login property.
type fakeVerifier struct {
	verifyCalls atomic.Int64
}

func (f *fakeVerifier) Hash(password string) (string, error) {
	return "digest:" + password, nil
}

func (f *fakeVerifier) Verify(password, digest string) (bool, error) {
	f.verifyCalls.Add(1)
	return digest == "digest:"+password, nil
}

func testGate() *policy.Gate {
	return policy.NewGate([]policy.Rule{
		{Role: policy.RoleAnonymous, Resource: policy.ResourceShowUsers, Allow: true},
		{Role: "StandardUser", Resource: policy.ResourceShowUsers, Allow: true},
		{Role: "StandardUser", Resource: policy.ResourceChangeOwnPhone, Allow: true},
		{Role: "HR", Resource: policy.ResourceShowUsers, Allow: true},
		{Role: "HR", Resource: policy.ResourceChangeOwnPhone, Allow: true},
		{Role: "HR", Resource: policy.ResourceChangePhone, Allow: true},
		{Role: "HR", Resource: policy.ResourceAddUser, Allow: true},
	})
}

// seedAccounts inserts the two standing test accounts, both with password
// "Test1234.".
func seedAccounts(t *testing.T, store directory.Store, verifier identity.Verifier) {
	t.Helper()
	digest, err := verifier.Hash("Test1234.")
	require.NoError(t, err)

	for _, account := range []*identity.Account{
		{Username: "default_user", PasswordHash: digest, PhoneNumber: "0784539872", Role: identity.RoleStandardUser},
		{Username: "default_hr", PasswordHash: digest, PhoneNumber: "0793175289", Role: identity.RoleHR},
	} {
		require.NoError(t, store.Create(context.Background(), account))
	}
}

// sessionResult is delivered when the server side of a test session ends.
type sessionResult struct {
	result Result
	err    error
}

// testClient drives the client side of an in-process session.
type testClient struct {
	t       *testing.T
	channel *wire.Channel
	done    <-chan sessionResult
}

// startSession wires a dispatcher to one end of an in-memory pipe and
// returns a client attached to the other end.
func startSession(t *testing.T, store directory.Store, verifier identity.Verifier) *testClient {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	dispatcher := NewDispatcher(store, testGate(), verifier)
	session := NewSession(wire.New(serverConn, time.Minute))

	done := make(chan sessionResult, 1)
	go func() {
		result, err := session.Run(context.Background(), dispatcher)
		done <- sessionResult{result: result, err: err}
		serverConn.Close()
	}()

	t.Cleanup(func() { clientConn.Close() })
	return &testClient{
		t:       t,
		channel: wire.New(clientConn, time.Minute),
		done:    done,
	}
}

func (c *testClient) banner() string {
	c.t.Helper()
	banner, err := c.channel.ReceiveString()
	require.NoError(c.t, err)
	return banner
}

func (c *testClient) send(values ...string) {
	c.t.Helper()
	for _, v := range values {
		require.NoError(c.t, c.channel.SendString(v))
	}
}

func (c *testClient) reply() protocol.Reply {
	c.t.Helper()
	reply, err := c.channel.ReceiveReply()
	require.NoError(c.t, err)
	return reply
}

// do runs one full turn: read banner, send selector and parameters, read
// the reply.
func (c *testClient) do(selector string, params ...string) protocol.Reply {
	c.t.Helper()
	c.banner()
	c.send(selector)
	c.send(params...)
	return c.reply()
}

func (c *testClient) login(username, password string) protocol.Reply {
	return c.do("5", username, password)
}

// result waits for the server side of the session to finish.
func (c *testClient) result() sessionResult {
	c.t.Helper()
	select {
	case r := <-c.done:
		return r
	case <-time.After(5 * time.Second):
		c.t.Fatal("session did not terminate")
		return sessionResult{}
	}
}

func TestScenarioAnonymousShowUsers(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	reply := client.do("1")
	require.True(t, reply.IsOK())
	require.Len(t, reply.Users, 2)

	byName := map[string]string{}
	for _, u := range reply.Users {
		byName[u.Username] = u.PhoneNumber
	}
	assert.Equal(t, "0784539872", byName["default_user"])
	assert.Equal(t, "0793175289", byName["default_hr"])
}

func TestScenarioLoginVerifyCountEqualized(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	// Unknown username.
	before := verifier.verifyCalls.Load()
	reply := client.login("nope", "whatever")
	require.False(t, reply.IsOK())
	assert.Equal(t, "Authentication failed", reply.Message)
	unknownCalls := verifier.verifyCalls.Load() - before

	// Known username, wrong password.
	before = verifier.verifyCalls.Load()
	reply = client.login("default_user", "wrong-password")
	require.False(t, reply.IsOK())
	assert.Equal(t, "Authentication failed", reply.Message)
	wrongPasswordCalls := verifier.verifyCalls.Load() - before

	assert.Equal(t, int64(1), unknownCalls, "unknown-user login must verify exactly once")
	assert.Equal(t, wrongPasswordCalls, unknownCalls, "verify count must not depend on account existence")
}

func TestScenarioStandardUserForbiddenAddUser(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	require.True(t, client.login("default_user", "Test1234.").IsOK())

	reply := client.do("4", "newbie", "Strong1!", "0791234567", "StandardUser")
	require.False(t, reply.IsOK())
	assert.Equal(t, "forbidden", reply.Message)

	_, err := store.Get(context.Background(), "newbie")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)
}

func TestScenarioHRAddUserThenConflict(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	require.True(t, client.login("default_hr", "Test1234.").IsOK())

	reply := client.do("4", "alice", "Strong1!", "0791234567", "StandardUser")
	require.True(t, reply.IsOK())

	created, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "digest:Strong1!", created.PasswordHash, "password must be stored hashed")
	assert.Equal(t, identity.RoleStandardUser, created.Role)

	// The identical call again conflicts and never overwrites.
	reply = client.do("4", "alice", "Other2!x", "0799999999", "HR")
	require.False(t, reply.IsOK())
	assert.Equal(t, "User already exists", reply.Message)

	unchanged, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "0791234567", unchanged.PhoneNumber)
	assert.Equal(t, identity.RoleStandardUser, unchanged.Role)
}

func TestScenarioLogout(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	// Logout while anonymous fails.
	reply := client.do("6")
	require.False(t, reply.IsOK())
	assert.Equal(t, "You are not logged in", reply.Message)

	// Login, then logout succeeds.
	require.True(t, client.login("default_user", "Test1234.").IsOK())
	require.True(t, client.do("6").IsOK())

	// A gated action afterwards is unauthenticated again.
	reply = client.do("2", "0791112233")
	require.False(t, reply.IsOK())
	assert.Equal(t, "unauthenticated", reply.Message)
}

func TestChangePhoneAuthorizationBeforeExistence(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)

	// Anonymous caller: unauthenticated, even though the target does not
	// exist. The reply must not leak existence information.
	client := startSession(t, store, verifier)
	reply := client.do("3", "ghost", "0791234567")
	require.False(t, reply.IsOK())
	assert.Equal(t, "unauthenticated", reply.Message)

	// Unauthorized caller: forbidden, same reasoning.
	client2 := startSession(t, store, verifier)
	require.True(t, client2.login("default_user", "Test1234.").IsOK())
	reply = client2.do("3", "ghost", "0791234567")
	require.False(t, reply.IsOK())
	assert.Equal(t, "forbidden", reply.Message)

	// Only an authorized caller learns the target is missing.
	client3 := startSession(t, store, verifier)
	require.True(t, client3.login("default_hr", "Test1234.").IsOK())
	reply = client3.do("3", "ghost", "0791234567")
	require.False(t, reply.IsOK())
	assert.Equal(t, "Target user not found", reply.Message)
}

func TestChangePhoneUpdatesTarget(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	require.True(t, client.login("default_hr", "Test1234.").IsOK())
	require.True(t, client.do("3", "default_user", "0790001122").IsOK())

	// Target usernames normalize case-insensitively.
	require.True(t, client.do("3", "DEFAULT_USER", "0790003344").IsOK())

	account, err := store.Get(context.Background(), "default_user")
	require.NoError(t, err)
	assert.Equal(t, "0790003344", account.PhoneNumber)

	reply := client.do("1")
	require.True(t, reply.IsOK())
	for _, u := range reply.Users {
		if u.Username == "default_user" {
			assert.Equal(t, "0790003344", u.PhoneNumber, "listing must reflect the latest phone")
		}
	}
}

func TestChangeOwnPhone(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	require.True(t, client.login("default_user", "Test1234.").IsOK())

	// Invalid format is rejected before any write.
	reply := client.do("2", "not-a-phone")
	require.False(t, reply.IsOK())
	assert.Equal(t, "Invalid phone number", reply.Message)

	require.True(t, client.do("2", "0795556677").IsOK())

	account, err := store.Get(context.Background(), "default_user")
	require.NoError(t, err)
	assert.Equal(t, "0795556677", account.PhoneNumber)
	assert.Equal(t, "digest:Test1234.", account.PasswordHash, "phone change must not disturb credentials")
}

func TestAddUserValidationOrder(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	require.True(t, client.login("default_hr", "Test1234.").IsOK())

	// Username and password are both invalid; the reply names the first
	// failing check.
	reply := client.do("4", "bad name!", "short", "123", "Wizard")
	require.False(t, reply.IsOK())
	assert.Equal(t, "Invalid username", reply.Message)

	reply = client.do("4", "okname", "short", "123", "Wizard")
	assert.Equal(t, "Invalid password", reply.Message)

	reply = client.do("4", "okname", "Strong1!", "123", "Wizard")
	assert.Equal(t, "Invalid phone number", reply.Message)

	reply = client.do("4", "okname", "Strong1!", "0791234567", "Wizard")
	assert.Equal(t, "Invalid role", reply.Message)
}

func TestLoginWhileAuthenticated(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	require.True(t, client.login("default_user", "Test1234.").IsOK())

	before := verifier.verifyCalls.Load()
	reply := client.login("default_hr", "Test1234.")
	require.False(t, reply.IsOK())
	assert.Equal(t, "You are already logged in", reply.Message)
	assert.Equal(t, before, verifier.verifyCalls.Load(), "no verify call when already authenticated")
}

func TestLoginNormalizesUsername(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	require.True(t, client.login("DEFAULT_USER", "Test1234.").IsOK())

	banner := client.banner()
	assert.Contains(t, banner, "Currently logged in as default_user")
	client.send("7")
	client.result()
}

func TestBannerReflectsAuthState(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	banner := client.banner()
	assert.True(t, strings.HasPrefix(banner, "Welcome to RESIGN"))
	assert.NotContains(t, banner, "Currently logged in")
	client.send("5", "default_hr", "Test1234.")
	require.True(t, client.reply().IsOK())

	banner = client.banner()
	assert.Contains(t, banner, "Currently logged in as default_hr")
	assert.Contains(t, banner, "Quote of the day:", "HR banner carries the quote line")
	client.send("7")
	client.result()
}

func TestExitTerminatesGracefully(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	client.banner()
	client.send("Exit")

	result := client.result()
	assert.Equal(t, ResultClientExit, result.result)
	assert.NoError(t, result.err)
}

func TestUnparseableSelectorIsFatal(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	client.banner()
	client.send("99")

	result := client.result()
	assert.Equal(t, ResultProtocolError, result.result)
	assert.Error(t, result.err)
}

func TestClientDisconnectIsGraceful(t *testing.T) {
	store := memory.New()
	verifier := &fakeVerifier{}
	seedAccounts(t, store, verifier)
	client := startSession(t, store, verifier)

	client.banner()
	require.NoError(t, client.channel.Close())

	result := client.result()
	assert.Equal(t, ResultDisconnect, result.result)
	assert.NoError(t, result.err)
}
