package core

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentnet/internal/util"
)

// NodeKind tags the two node variants. The many specialized node roles map to
// this capability tag rather than an inheritance hierarchy.
type NodeKind string

const (
	// NodeContain marks a node that groups an ordered sequence of child
	// nodes. Contain nodes never perform capability invocation themselves.
	NodeContain NodeKind = "contain"
	// NodeInvoke marks a leaf node bound to a single capability route.
	NodeInvoke NodeKind = "invoke"
)

// Node is a unit within a Network. A single struct carries both variants,
// discriminated by Kind: contain nodes own Children, invoke nodes carry a
// Route binding plus payload Content once executed.
//
// A Node belongs to exactly one Network and is mutated only by the logical
// task driving that Network, so per-node fields need no locking.
type Node struct {
	ID           string            `json:"id"`
	Kind         NodeKind          `json:"kind"`
	Route        string            `json:"route,omitempty"`  // bound capability (invoke nodes)
	Inputs       []string          `json:"inputs,omitempty"` // ordered input node references
	Content      *Content          `json:"content,omitempty"`
	Terminal     bool              `json:"terminal,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	network  *Network // owning network (non-owning back-reference)
	children []*Node  // ordered children (contain nodes)
	child    *Network // nested network spawned by a delegating invoke node
	executed bool     // set once the engine has driven this invoke node
}

// NewInvokeNode creates a pending leaf node bound to a capability route. The
// optional inputs are identifiers of nodes whose contents feed this node.
func NewInvokeNode(route string, inputs ...string) *Node {
	return &Node{
		ID:        NewID(),
		Kind:      NodeInvoke,
		Route:     route,
		Inputs:    inputs,
		Timestamp: time.Now().UTC(),
	}
}

// NewContainNode creates a grouping node owning the given children in order.
func NewContainNode(children ...*Node) *Node {
	return &Node{
		ID:        NewID(),
		Kind:      NodeContain,
		Timestamp: time.Now().UTC(),
		children:  children,
	}
}

// NewMessageNode creates a completed leaf node holding conversational content
// (user input or a capability result). Message nodes are never pending.
func NewMessageNode(content Content) *Node {
	n := NewInvokeNode("")
	n.Content = &content
	n.executed = true
	return n
}

// NewResultNode creates a completed leaf node recording a capability result.
// The source invoke node becomes its sole input reference.
func NewResultNode(source *Node, content Content, terminal bool) *Node {
	n := NewInvokeNode(source.Route, source.ID)
	n.Content = &content
	n.Terminal = terminal
	n.executed = true
	return n
}

// NewErrorNode creates a completed leaf node recording a recovered capability
// failure. Execution continues past error nodes. The diagnostic is also
// carried as tool-role content so history projections reflect the failure.
func NewErrorNode(source *Node, code string, err error) *Node {
	n := NewInvokeNode(source.Route, source.ID)
	content := TextContent("tool", fmt.Sprintf("route %q failed (%s): %s", source.Route, code, err))
	n.Content = &content
	n.ErrorCode = code
	n.ErrorMessage = err.Error()
	n.executed = true
	return n
}

// Network returns the owning Network, or nil before the node is appended.
func (n *Node) Network() *Network { return n.network }

// Children returns the ordered child sequence of a contain node. The returned
// slice is a copy; mutating it does not affect the node.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Child returns the nested Network spawned by this node, or nil.
func (n *Node) Child() *Network { return n.child }

// AttachChild retains a nested Network as this node's named child for
// observability. The nested nodes are never merged into the parent history.
func (n *Node) AttachChild(net *Network) {
	if net == nil {
		return
	}
	net.parent = n.network
	net.parentNode = n.ID
	n.child = net
}

// Pending reports whether this invoke node still awaits execution.
func (n *Node) Pending() bool {
	return n.Kind == NodeInvoke && n.Route != "" && !n.executed
}

// MarkExecuted records that the engine has driven this node. It is called by
// the single task owning the Network; nodes are never shared across tasks.
func (n *Node) MarkExecuted() { n.executed = true }

// Failed reports whether this node records a recovered capability failure.
func (n *Node) Failed() bool { return n.ErrorMessage != "" }

// NewID generates a unique identifier for nodes and networks.
func NewID() string { return util.NewID() }
