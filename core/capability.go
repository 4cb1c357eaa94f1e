package core

// Result is the outcome of one capability invocation.
type Result struct {
	Content  Content  // Conversational payload appended to history
	Terminal bool     // True when the supervisor should finalize
	Continue bool     // True when the capability requests another implicit turn
	Failed   bool     // True when this result records a recovered failure
	Nested   *Network // Delegated sub-network retained for observability
}

// Capability is an invocation-scoped binding target: the implementation
// behind a route name. The router does not structurally distinguish "agent"
// from "tool" capabilities; only whether the invoked capability itself spins
// up a nested Network (reported via Result.Nested).
//
// Implementations must respect context cancellation via the InvokeContext and
// must not retain the input Content beyond the call.
type Capability interface {
	// Name returns the route name this capability is registered under.
	Name() string

	// Description is surfaced to selection strategies to guide routing.
	Description() string

	// Parameters returns a JSON schema describing structured-call arguments.
	// Capabilities addressed only by classification may return nil.
	Parameters() map[string]any

	// Invoke executes the capability against the effective input.
	Invoke(ictx *InvokeContext, input Content) (*Result, error)
}

// FuncCapability adapts a plain Go function into a Capability.
type FuncCapability struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ictx *InvokeContext, input Content) (*Result, error)
}

// NewFuncCapability constructs a FuncCapability. The parameters schema may be
// nil for classification-only routes.
func NewFuncCapability(
	name, description string,
	parameters map[string]any,
	fn func(ictx *InvokeContext, input Content) (*Result, error),
) *FuncCapability {
	return &FuncCapability{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// Name returns the route name.
func (c *FuncCapability) Name() string { return c.name }

// Description returns the routing description.
func (c *FuncCapability) Description() string { return c.description }

// Parameters returns the declared argument schema (possibly nil).
func (c *FuncCapability) Parameters() map[string]any { return c.parameters }

// Invoke runs the wrapped function.
func (c *FuncCapability) Invoke(ictx *InvokeContext, input Content) (*Result, error) {
	return c.fn(ictx, input)
}
