package core

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError signals a fatal pre-flight fault (missing route,
// unresolvable binding, invalid declaration). An invocation failing with a
// ConfigurationError never started issuing model calls for the faulty step.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidNodeError reports a node append that violates Network invariants:
// duplicate identifier or an input reference not resolvable in the current or
// an ancestor Network.
type InvalidNodeError struct {
	NodeID string // Node being appended
	Ref    string // Offending input reference (empty for duplicate IDs)
	Reason string
}

func (e *InvalidNodeError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("invalid node %s: input %q %s", e.NodeID, e.Ref, e.Reason)
	}
	return fmt.Sprintf("invalid node %s: %s", e.NodeID, e.Reason)
}

// RegistrationConflictError reports a race between two invocations installing
// the identical (scope, name) registry key. Fatal to the conflicting
// invocation only; it cannot occur with unique invocation identifiers.
type RegistrationConflictError struct {
	ScopeKey string
	Name     string
}

func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("registration conflict: %q already installed in scope %s", e.Name, e.ScopeKey)
}

// RoutingAmbiguityError reports a selection output that matched no registered
// route, even after case-insensitive prefix fallback. The router recovers by
// finalizing with an explanatory message; it never picks an arbitrary route.
type RoutingAmbiguityError struct {
	Choice     string
	Candidates []string
}

func (e *RoutingAmbiguityError) Error() string {
	return fmt.Sprintf("routing ambiguity: %q matches none of [%s]", e.Choice, strings.Join(e.Candidates, ", "))
}

// TransientTransportError wraps a failure worth retrying with bounded backoff:
// transport faults, rate limits, per-leaf timeouts. After retry exhaustion it
// is surfaced as a recovered error-result node, not as an invocation failure.
type TransientTransportError struct {
	Op  string
	Err error
}

func (e *TransientTransportError) Error() string {
	return fmt.Sprintf("transient transport error in %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransientTransportError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientTransportError. A nil err returns nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientTransportError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientTransportError.
func IsTransient(err error) bool {
	var t *TransientTransportError
	return errors.As(err, &t)
}

// UnsupportedContentError reports a modality with no representation in the
// target schema. The affected content is replaced with a visible placeholder;
// the error is logged, never fatal.
type UnsupportedContentError struct {
	Modality string
}

func (e *UnsupportedContentError) Error() string {
	return fmt.Sprintf("unsupported content: no %s representation in target schema", e.Modality)
}
