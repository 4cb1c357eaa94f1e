package core

import (
	"context"

	"github.com/hupe1980/agentnet/logging"
)

// Delta is one outbound streaming chunk, tagged with its originating route
// name and turn index when routing is active.
type Delta struct {
	Route   string  `json:"route,omitempty"`
	Turn    int     `json:"turn,omitempty"`
	Content Content `json:"content"`
	Partial bool    `json:"partial,omitempty"`
}

// InvokeContext carries the per-invocation execution scope threaded through
// the engine, the modifier pipeline and capabilities. It aggregates:
//   - The ambient cancellation Context
//   - The invocation identifier and registry Scope (delegation chain)
//   - The Network being driven, plus the current route and turn index
//   - The outbound Delta channel for streaming consumers
//   - The per-invocation Scratch map modifiers may use for side effects
//   - The shared CallLimiter bounding capability/model calls
//
// One InvokeContext belongs to one logical task; derive child contexts for
// nested delegated invocations instead of sharing.
type InvokeContext struct {
	Context      context.Context
	InvocationID string
	Scope        Scope
	Route        string
	Turn         int
	Network      *Network
	Emit         chan<- Delta
	Scratch      map[string]any
	Limiter      *CallLimiter

	*loggerAdapter
}

// NewInvokeContext constructs an InvokeContext for a top-level invocation.
// maxCalls of 0 means unlimited.
func NewInvokeContext(
	ctx context.Context,
	invocationID string,
	network *Network,
	emit chan<- Delta,
	maxCalls int,
	logger logging.Logger,
) *InvokeContext {
	return &InvokeContext{
		Context:       ctx,
		InvocationID:  invocationID,
		Scope:         NewScope(invocationID),
		Network:       network,
		Emit:          emit,
		Scratch:       map[string]any{},
		Limiter:       NewCallLimiter(maxCalls),
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done mirrors context.Context's Done.
func (ic *InvokeContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (ic *InvokeContext) Err() error { return ic.Context.Err() }

// EmitDelta sends a streaming chunk tagged with the current route and turn.
// It is a no-op when no consumer is attached. Returns the cancellation error
// if the context ends before emission.
func (ic *InvokeContext) EmitDelta(content Content, partial bool) error {
	if ic.Emit == nil {
		return nil
	}
	d := Delta{Route: ic.Route, Turn: ic.Turn, Content: content, Partial: partial}
	select {
	case <-ic.Context.Done():
		return ic.Context.Err()
	case ic.Emit <- d:
		return nil
	}
}

// WithRoute derives a context for one routed turn. The derived context shares
// the Network, Scratch, Emit channel and Limiter; only Route and Turn differ.
func (ic *InvokeContext) WithRoute(route string, turn int) *InvokeContext {
	c := *ic
	c.Route = route
	c.Turn = turn
	return &c
}

// Child derives a context for a nested delegated invocation. The scope chain
// is extended with the nested invocation id, the nested Network replaces the
// parent's and the Scratch buffer starts fresh; cancellation, Emit and the
// Limiter are inherited so cancellation propagates downward and call budgets
// stay global.
func (ic *InvokeContext) Child(invocationID string, network *Network) *InvokeContext {
	return &InvokeContext{
		Context:       ic.Context,
		InvocationID:  invocationID,
		Scope:         ic.Scope.Child(invocationID),
		Network:       network,
		Emit:          ic.Emit,
		Scratch:       map[string]any{},
		Limiter:       ic.Limiter,
		loggerAdapter: ic.loggerAdapter,
	}
}
