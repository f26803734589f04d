// Package storetest provides a conformance suite shared by all directory
// Store implementations. Each backend's test package calls Run with a
// factory for a fresh, empty store.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/resignhq/resign/pkg/directory"
	"github.com/resignhq/resign/pkg/identity"
)

// Factory creates a fresh empty store for one subtest. Cleanup is handled
// through t.Cleanup by the factory itself.
type Factory func(t *testing.T) directory.Store

// Run executes the conformance suite against the given factory.
func Run(t *testing.T, factory Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, factory) })
	t.Run("CreateConflict", func(t *testing.T) { testCreateConflict(t, factory) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, factory) })
	t.Run("PutOverwrites", func(t *testing.T) { testPutOverwrites(t, factory) })
	t.Run("ListProjections", func(t *testing.T) { testListProjections(t, factory) })
	t.Run("Count", func(t *testing.T) { testCount(t, factory) })
}

func account(username, phone string, role identity.Role) *identity.Account {
	return &identity.Account{
		Username:     username,
		PasswordHash: "$2a$04$fakefakefakefakefakefakefakefakefakefakefakefakefakef",
		PhoneNumber:  phone,
		Role:         role,
	}
}

func testGetMissing(t *testing.T, factory Factory) {
	store := factory(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "ghost"); err != directory.ErrAccountNotFound {
		t.Errorf("Get(missing) = %v, want ErrAccountNotFound", err)
	}
}

func testCreateAndGet(t *testing.T, factory Factory) {
	store := factory(t)
	ctx := context.Background()

	if err := store.Create(ctx, account("alice", "0791234567", identity.RoleHR)); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Username != "alice" || got.PhoneNumber != "0791234567" || got.Role != identity.RoleHR {
		t.Errorf("Get returned unexpected account %+v", got)
	}
	if got.PasswordHash == "" {
		t.Error("stored password hash was lost")
	}
}

func testCreateConflict(t *testing.T, factory Factory) {
	store := factory(t)
	ctx := context.Background()

	first := account("bob", "0791112233", identity.RoleStandardUser)
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("first Create returned error: %v", err)
	}

	// A later Create for the same username must never overwrite.
	err := store.Create(ctx, account("bob", "0799998877", identity.RoleHR))
	if err != directory.ErrAccountExists {
		t.Fatalf("second Create = %v, want ErrAccountExists", err)
	}

	got, err := store.Get(ctx, "bob")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.PhoneNumber != "0791112233" || got.Role != identity.RoleStandardUser {
		t.Errorf("conflicting Create overwrote the record: %+v", got)
	}
}

func testConcurrentCreate(t *testing.T, factory Factory) {
	store := factory(t)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Create(ctx, account("racer", "0790000000", identity.RoleStandardUser)) == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Errorf("%d concurrent Create calls succeeded, want exactly 1", count)
	}
}

func testPutOverwrites(t *testing.T, factory Factory) {
	store := factory(t)
	ctx := context.Background()

	if err := store.Create(ctx, account("carol", "0791234567", identity.RoleStandardUser)); err != nil {
		t.Fatal(err)
	}

	updated := account("carol", "0797654321", identity.RoleStandardUser)
	if err := store.Put(ctx, updated); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	got, err := store.Get(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if got.PhoneNumber != "0797654321" {
		t.Errorf("Put did not overwrite phone: got %q", got.PhoneNumber)
	}
}

func testListProjections(t *testing.T, factory Factory) {
	store := factory(t)
	ctx := context.Background()

	accounts := []*identity.Account{
		account("alice", "0791234567", identity.RoleHR),
		account("bob", "0792223344", identity.RoleStandardUser),
	}
	for _, a := range accounts {
		if err := store.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	projections, err := store.ListProjections(ctx)
	if err != nil {
		t.Fatalf("ListProjections returned error: %v", err)
	}
	if len(projections) != len(accounts) {
		t.Fatalf("got %d projections, want %d", len(projections), len(accounts))
	}

	byName := make(map[string]identity.Projection, len(projections))
	for _, p := range projections {
		byName[p.Username] = p
	}
	if byName["alice"].PhoneNumber != "0791234567" {
		t.Errorf("alice projection wrong: %+v", byName["alice"])
	}
	if byName["bob"].PhoneNumber != "0792223344" {
		t.Errorf("bob projection wrong: %+v", byName["bob"])
	}
}

func testCount(t *testing.T, factory Factory) {
	store := factory(t)
	ctx := context.Background()

	n, err := store.Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Count on empty store = (%d, %v), want (0, nil)", n, err)
	}

	if err := store.Create(ctx, account("alice", "0791234567", identity.RoleHR)); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, account("bob", "0792223344", identity.RoleStandardUser)); err != nil {
		t.Fatal(err)
	}

	n, err = store.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count = (%d, %v), want (2, nil)", n, err)
	}
}
