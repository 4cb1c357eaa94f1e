package capability

import (
	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/engine"
)

// DelegateCapability hands a sub-task to its own set of routes, executed in a
// nested Network under a child registry scope. The nested history is retained
// on the delegating node for observability and never merged into the parent.
type DelegateCapability struct {
	name        string
	description string
	engine      *engine.Engine
	entry       string
	routes      map[string]core.Capability
}

// NewDelegateCapability creates a delegating capability. entry names the
// route executed first inside the nested invocation; it must be resolvable
// from the child scope (declared in routes or visible from an outer scope).
func NewDelegateCapability(
	name, description string,
	eng *engine.Engine,
	entry string,
	routes map[string]core.Capability,
) *DelegateCapability {
	return &DelegateCapability{
		name:        name,
		description: description,
		engine:      eng,
		entry:       entry,
		routes:      routes,
	}
}

// Name returns the route name.
func (c *DelegateCapability) Name() string { return c.name }

// Description returns the routing description.
func (c *DelegateCapability) Description() string { return c.description }

// Parameters returns nil; delegation targets are addressed by classification.
func (c *DelegateCapability) Parameters() map[string]any { return nil }

// Invoke runs the nested invocation to completion. The child scope extends
// the delegation chain, so inner declarations shadow outer ones of the same
// name without ever touching the outer entries.
func (c *DelegateCapability) Invoke(ictx *core.InvokeContext, input core.Content) (*core.Result, error) {
	nested := core.NewNetwork("")
	child := ictx.Child(core.NewID(), nested)

	if len(c.routes) > 0 {
		if err := c.engine.Registry().Begin(child.Scope, c.routes); err != nil {
			return nil, err
		}
		defer c.engine.Registry().End(child.Scope)
	}

	if _, err := nested.Append(core.NewMessageNode(input)); err != nil {
		return nil, err
	}
	if _, err := nested.Append(core.NewInvokeNode(c.entry)); err != nil {
		return nil, err
	}

	child.LogDebug("delegate.start", "capability", c.name, "entry", c.entry, "scope", child.Scope.Key())

	res, err := c.engine.Run(child)
	if err != nil {
		return nil, err
	}

	out := &core.Result{Nested: nested}
	if res != nil {
		out.Content = res.Content
		out.Failed = res.Failed
	}
	return out, nil
}
