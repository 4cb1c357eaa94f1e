// Package registry provides the invocation-scoped capability registry. Many
// concurrent top-level invocations declare route names (possibly overlapping)
// without collision and without static process-start registration: every
// entry is keyed by the full delegation chain of the declaring invocation,
// and every Begin is paired with a guaranteed End on all exit paths.
package registry

import (
	"sort"
	"sync"

	"github.com/hupe1980/agentnet/core"
)

// ScopedRegistry is the process-wide registry shared by concurrent
// invocations. Isolation comes from composite (scope, name) keys plus an
// atomic install-if-absent primitive, never from a single global name map.
type ScopedRegistry struct {
	mu        sync.Mutex
	entries   map[string]core.Capability // (scope.Key() + "\x00" + name) -> impl
	installed map[string][]string        // scope.Key() -> entry keys installed by Begin
}

// New creates an empty ScopedRegistry.
func New() *ScopedRegistry {
	return &ScopedRegistry{
		entries:   map[string]core.Capability{},
		installed: map[string][]string{},
	}
}

func entryKey(scopeKey, name string) string { return scopeKey + "\x00" + name }

// Begin atomically installs each declaration under the (scope, name) key.
// Installation is all-or-nothing: on a key conflict every entry installed by
// this call is rolled back and a *core.RegistrationConflictError is returned.
// Conflicts cannot occur given unique invocation identifiers.
func (r *ScopedRegistry) Begin(scope core.Scope, declarations map[string]core.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scopeKey := scope.Key()

	// Deterministic install order keeps conflict reporting stable.
	names := make([]string, 0, len(declarations))
	for name := range declarations {
		names = append(names, name)
	}
	sort.Strings(names)

	var installedKeys []string
	for _, name := range names {
		key := entryKey(scopeKey, name)
		if _, exists := r.entries[key]; exists {
			for _, k := range installedKeys {
				delete(r.entries, k)
			}
			return &core.RegistrationConflictError{ScopeKey: scopeKey, Name: name}
		}
		r.entries[key] = declarations[name]
		installedKeys = append(installedKeys, key)
	}

	r.installed[scopeKey] = append(r.installed[scopeKey], installedKeys...)

	return nil
}

// End removes exactly the entries installed by the matching Begin. It is
// idempotent: a second call for the same scope is a no-op, never an error.
func (r *ScopedRegistry) End(scope core.Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scopeKey := scope.Key()
	for _, key := range r.installed[scopeKey] {
		delete(r.entries, key)
	}
	delete(r.installed, scopeKey)
}

// Resolve looks up the implementation visible to the given scope: the
// innermost scope first, then each enclosing scope along the delegation
// chain. Inner registrations shadow outer ones of the same name.
func (r *ScopedRegistry) Resolve(scope core.Scope, name string) (core.Capability, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := scope; ; {
		if impl, ok := r.entries[entryKey(s.Key(), name)]; ok {
			return impl, true
		}
		parent, ok := s.Parent()
		if !ok {
			return nil, false
		}
		s = parent
	}
}

// Visible returns the sorted union of route names resolvable from the scope.
func (r *ScopedRegistry) Visible(scope core.Scope) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]struct{}{}
	for s := scope; ; {
		prefix := s.Key() + "\x00"
		for key := range r.entries {
			if len(key) > len(prefix) && key[:len(prefix)] == prefix {
				seen[key[len(prefix):]] = struct{}{}
			}
		}
		parent, ok := s.Parent()
		if !ok {
			break
		}
		s = parent
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of installed entries. Intended for tests and
// diagnostics.
func (r *ScopedRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
