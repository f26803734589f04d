package identity

import "testing"

func TestBcryptVerifierRoundTrip(t *testing.T) {
	// Minimum cost keeps the test fast.
	v := BcryptVerifier{Cost: 4}

	digest, err := v.Hash("Strong1!")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if digest == "Strong1!" || digest == "" {
		t.Fatalf("Hash returned implausible digest %q", digest)
	}

	ok, err := v.Verify("Strong1!", digest)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Error("Verify rejected the correct password")
	}

	ok, err = v.Verify("wrong-password", digest)
	if err != nil {
		t.Fatalf("Verify returned error for wrong password: %v", err)
	}
	if ok {
		t.Error("Verify accepted a wrong password")
	}
}

func TestBcryptVerifierMalformedDigest(t *testing.T) {
	v := BcryptVerifier{}

	ok, _ := v.Verify("anything", "not-a-bcrypt-digest")
	if ok {
		t.Error("Verify accepted a malformed digest")
	}
}

func TestDummyDigestIsWellFormed(t *testing.T) {
	v := BcryptVerifier{}

	// The dummy digest must be parseable so the equalizing verify performs
	// a full bcrypt comparison rather than failing fast on a parse error.
	ok, err := v.Verify("some-password", DummyDigest)
	if err != nil {
		t.Fatalf("Verify against DummyDigest returned error: %v", err)
	}
	if ok {
		t.Error("DummyDigest matched an arbitrary password")
	}
}

func TestAccountValidate(t *testing.T) {
	valid := &Account{Username: "alice", PasswordHash: "x", PhoneNumber: "0791234567", Role: RoleHR}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid account rejected: %v", err)
	}

	tests := []struct {
		name    string
		account Account
	}{
		{"empty username", Account{Role: RoleHR}},
		{"non-canonical username", Account{Username: "Alice", Role: RoleHR}},
		{"bad role", Account{Username: "alice", Role: Role("root")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.account.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestProjectionOmitsPasswordHash(t *testing.T) {
	a := &Account{Username: "alice", PasswordHash: "secret", PhoneNumber: "0791234567", Role: RoleStandardUser}
	p := a.Projection()
	if p.Username != "alice" || p.PhoneNumber != "0791234567" {
		t.Errorf("unexpected projection %+v", p)
	}
	// Projection has no hash field at all; this test pins the shape.
}
