package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resignhq/resign/internal/server"
	"github.com/resignhq/resign/pkg/directory/memory"
	"github.com/resignhq/resign/pkg/identity"
	"github.com/resignhq/resign/pkg/policy"
)

// startServer boots a full server on an ephemeral port and returns its
// address.
func startServer(t *testing.T) string {
	t.Helper()

	store := memory.New()
	verifier := &identity.BcryptVerifier{Cost: 4}

	digest, err := verifier.Hash("Test1234.")
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), &identity.Account{
		Username:     "default_hr",
		PasswordHash: digest,
		PhoneNumber:  "0793175289",
		Role:         identity.RoleHR,
	}))

	gate := policy.NewGate([]policy.Rule{
		{Role: policy.RoleAnonymous, Resource: policy.ResourceShowUsers, Allow: true},
		{Role: "HR", Resource: policy.ResourceShowUsers, Allow: true},
		{Role: "HR", Resource: policy.ResourceChangeOwnPhone, Allow: true},
		{Role: "HR", Resource: policy.ResourceChangePhone, Allow: true},
		{Role: "HR", Resource: policy.ResourceAddUser, Allow: true},
	})

	srv := server.New(server.Config{
		BindAddress: "127.0.0.1",
		Port:        0,
		ReadTimeout: time.Minute,
	}, server.NewDispatcher(store, gate, verifier))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	select {
	case <-srv.ListenerReady:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return srv.Addr().String()
}

func TestClientSessionLifecycle(t *testing.T) {
	addr := startServer(t)

	c, err := Dial(Options{Address: addr, DialTimeout: 5 * time.Second, ReadTimeout: 30 * time.Second})
	require.NoError(t, err)

	assert.Contains(t, c.Banner(), "Welcome to RESIGN")

	// Anonymous listing works under the default policy.
	users, err := c.ShowUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "default_hr", users[0].Username)

	// Gated actions fail while anonymous.
	err = c.ChangeOwnPhone("0790001122")
	require.ErrorIs(t, err, ErrActionFailed)
	assert.Contains(t, err.Error(), "unauthenticated")

	require.NoError(t, c.Login("default_hr", "Test1234."))
	assert.Contains(t, c.Banner(), "Currently logged in as default_hr")

	require.NoError(t, c.AddUser("bob", "Strong1!", "0791234567", "StandardUser"))
	err = c.AddUser("bob", "Strong1!", "0791234567", "StandardUser")
	require.ErrorIs(t, err, ErrActionFailed)
	assert.Contains(t, err.Error(), "User already exists")

	require.NoError(t, c.ChangePhone("bob", "0795556677"))

	users, err = c.ShowUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)

	require.NoError(t, c.Logout())
	require.NoError(t, c.Exit())
}

func TestClientBadCredentials(t *testing.T) {
	addr := startServer(t)

	c, err := Dial(Options{Address: addr, DialTimeout: 5 * time.Second, ReadTimeout: 30 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	err = c.Login("default_hr", "wrong-password")
	require.ErrorIs(t, err, ErrActionFailed)
	assert.Contains(t, err.Error(), "Authentication failed")

	err = c.Login("ghost", "whatever")
	require.ErrorIs(t, err, ErrActionFailed)
	assert.Contains(t, err.Error(), "Authentication failed")
}
