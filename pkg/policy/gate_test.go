package policy

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const testPolicy = `
rules:
  - role: anonymous
    resource: showUsers
    allow: true
  - role: StandardUser
    resource: showUsers
    allow: true
  - role: StandardUser
    resource: changeOwnPhone
    allow: true
  - role: HR
    resource: showUsers
    allow: true
  - role: HR
    resource: changeOwnPhone
    allow: true
  - role: HR
    resource: changePhone
    allow: true
  - role: HR
    resource: addUser
    allow: true
`

func loadTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := Parse([]byte(testPolicy))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return gate
}

func TestEvaluateMatchesTable(t *testing.T) {
	gate := loadTestGate(t)

	tests := []struct {
		role     string
		resource string
		want     bool
	}{
		{RoleAnonymous, ResourceShowUsers, true},
		{RoleAnonymous, ResourceChangeOwnPhone, false},
		{RoleAnonymous, ResourceAddUser, false},
		{"StandardUser", ResourceShowUsers, true},
		{"StandardUser", ResourceChangeOwnPhone, true},
		{"StandardUser", ResourceChangePhone, false},
		{"StandardUser", ResourceAddUser, false},
		{"HR", ResourceShowUsers, true},
		{"HR", ResourceChangeOwnPhone, true},
		{"HR", ResourceChangePhone, true},
		{"HR", ResourceAddUser, true},
	}

	for _, tt := range tests {
		if got := gate.Evaluate(tt.role, tt.resource); got != tt.want {
			t.Errorf("Evaluate(%q, %q) = %v, want %v", tt.role, tt.resource, got, tt.want)
		}
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	gate := loadTestGate(t)

	for i := 0; i < 100; i++ {
		if !gate.Evaluate("HR", ResourceAddUser) {
			t.Fatal("Evaluate flapped on an allowed pair")
		}
		if gate.Evaluate("StandardUser", ResourceAddUser) {
			t.Fatal("Evaluate flapped on a denied pair")
		}
	}
}

func TestUnknownPairsDeny(t *testing.T) {
	gate := loadTestGate(t)

	unknown := []struct{ role, resource string }{
		{"Intern", ResourceShowUsers},
		{"HR", "deleteUser"},
		{"", ""},
		{"hr", ResourceAddUser}, // roles are case-sensitive
	}
	for _, pair := range unknown {
		if gate.Evaluate(pair.role, pair.resource) {
			t.Errorf("Evaluate(%q, %q) = true, want deny", pair.role, pair.resource)
		}
	}
}

func TestExplicitDenyEntriesIgnored(t *testing.T) {
	gate, err := Parse([]byte(`
rules:
  - role: HR
    resource: addUser
    allow: false
`))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if gate.Evaluate("HR", ResourceAddUser) {
		t.Error("explicit deny entry granted access")
	}
	if gate.Len() != 0 {
		t.Errorf("expected empty allow table, got %d entries", gate.Len())
	}
}

func TestParseRejectsMalformedPolicy(t *testing.T) {
	cases := map[string]string{
		"not yaml":     "{{{{",
		"missing role": "rules:\n  - resource: showUsers\n    allow: true\n",
		"missing rsrc": "rules:\n  - role: HR\n    allow: true\n",
		"tabs in yaml": "rules:\n\t- role: HR\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(testPolicy), 0o600); err != nil {
		t.Fatal(err)
	}

	gate, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !gate.Evaluate("HR", ResourceAddUser) {
		t.Error("loaded gate denies a configured pair")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load of missing file expected error, got nil")
	}
}

func TestConcurrentReads(t *testing.T) {
	gate := loadTestGate(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				gate.Evaluate("HR", ResourceChangePhone)
				gate.Evaluate(RoleAnonymous, ResourceAddUser)
			}
		}()
	}
	wg.Wait()
}
