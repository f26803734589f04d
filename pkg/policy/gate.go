// Package policy implements the role×resource permission gate.
//
// The gate is backed by an immutable rule table loaded exactly once at
// startup from a YAML file. After loading it is never mutated, so Evaluate
// is safe for unsynchronized concurrent reads from every session goroutine.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoleAnonymous is the pseudo-role used to evaluate policy for sessions that
// have not authenticated. It never corresponds to a stored account.
const RoleAnonymous = "anonymous"

// Resource names gate-controlled operations. These are the only resources
// the dispatcher ever asks about.
const (
	ResourceShowUsers      = "showUsers"
	ResourceChangeOwnPhone = "changeOwnPhone"
	ResourceChangePhone    = "changePhone"
	ResourceAddUser        = "addUser"
)

// Rule is one (role, resource) entry of the policy file.
type Rule struct {
	Role     string `yaml:"role"`
	Resource string `yaml:"resource"`
	Allow    bool   `yaml:"allow"`
}

// policyFile is the on-disk shape of the policy table.
type policyFile struct {
	Rules []Rule `yaml:"rules"`
}

type ruleKey struct {
	role     string
	resource string
}

// Gate evaluates (role, resource) pairs against the loaded rule table.
//
// The gate fails closed: any pair without an explicit allow entry is denied,
// and load-time problems abort startup rather than producing a permissive
// gate.
type Gate struct {
	allow map[ruleKey]bool
}

// Load reads the policy table from the given YAML file.
//
// Malformed YAML, unreadable files, and entries with an empty role or
// resource are all load errors; the caller is expected to treat them as
// fatal at process startup.
func Load(path string) (*Gate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Gate from raw policy YAML.
func Parse(data []byte) (*Gate, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	gate := &Gate{allow: make(map[ruleKey]bool, len(file.Rules))}
	for i, rule := range file.Rules {
		if rule.Role == "" || rule.Resource == "" {
			return nil, fmt.Errorf("policy rule %d: role and resource are required", i)
		}
		if !rule.Allow {
			// Deny is the default; an explicit deny entry is allowed in
			// the file but adds nothing to the table.
			continue
		}
		gate.allow[ruleKey{role: rule.Role, resource: rule.Resource}] = true
	}

	return gate, nil
}

// NewGate builds a Gate directly from rules. Used by tests and by callers
// that assemble policy programmatically.
func NewGate(rules []Rule) *Gate {
	gate := &Gate{allow: make(map[ruleKey]bool, len(rules))}
	for _, rule := range rules {
		if rule.Allow && rule.Role != "" && rule.Resource != "" {
			gate.allow[ruleKey{role: rule.Role, resource: rule.Resource}] = true
		}
	}
	return gate
}

// Evaluate reports whether the role is allowed to use the resource.
// Unknown pairs deny.
func (g *Gate) Evaluate(role, resource string) bool {
	return g.allow[ruleKey{role: role, resource: resource}]
}

// Len returns the number of allow entries in the table.
func (g *Gate) Len() int {
	return len(g.allow)
}
