package core

import "strings"

// Scope is the delegation chain of invocation identifiers forming a registry
// isolation key. A top-level invocation has a single element; each nested
// delegated invocation extends the chain so inner registrations never touch
// outer entries.
type Scope []string

// NewScope creates a root scope for a top-level invocation.
func NewScope(invocationID string) Scope {
	return Scope{invocationID}
}

// Child returns a new scope extended with a nested invocation identifier.
// The receiver is never mutated.
func (s Scope) Child(invocationID string) Scope {
	out := make(Scope, len(s), len(s)+1)
	copy(out, s)
	return append(out, invocationID)
}

// Parent returns the enclosing scope. The second return is false at the root.
func (s Scope) Parent() (Scope, bool) {
	if len(s) <= 1 {
		return nil, false
	}
	out := make(Scope, len(s)-1)
	copy(out, s[:len(s)-1])
	return out, true
}

// Leaf returns the innermost invocation identifier.
func (s Scope) Leaf() string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

// Key renders the full chain as a stable map key.
func (s Scope) Key() string { return strings.Join(s, "/") }

// String implements fmt.Stringer.
func (s Scope) String() string { return s.Key() }
