package core

import (
	"sync"
	"time"
)

// Network is the append-only ordered node sequence for one conversation or
// execution thread. Insertion order is the sole source of truth: existing
// entries are never reordered or deleted.
//
// A Network is created per top-level request or per sub-agent delegation and
// is only ever mutated by the single logical task driving it. The RWMutex
// guards reads performed by observers (streaming consumers, tests) against
// that writer; it does not license concurrent writers.
type Network struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	mu         sync.RWMutex
	nodes      []*Node
	index      map[string]*Node
	parent     *Network // enclosing network when spawned by a delegating node
	parentNode string   // delegating node ID in the parent network
}

// NewNetwork creates an empty Network. An empty id is replaced with a
// generated one.
func NewNetwork(id string) *Network {
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	return &Network{
		ID:      id,
		Created: now,
		Updated: now,
		index:   map[string]*Node{},
	}
}

// Append adds a node to the end of the history and returns its handle.
// It fails with *InvalidNodeError when the node's identifier collides with an
// existing entry or when an input reference is not resolvable in this or an
// ancestor Network. O(1) amortized.
func (n *Network) Append(node *Node) (*Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if node.ID == "" {
		node.ID = NewID()
	}
	if _, exists := n.index[node.ID]; exists {
		return nil, &InvalidNodeError{NodeID: node.ID, Reason: "duplicate identifier"}
	}
	for _, ref := range node.Inputs {
		if !n.resolvableLocked(ref) {
			return nil, &InvalidNodeError{NodeID: node.ID, Ref: ref, Reason: "not resolvable in this or an ancestor network"}
		}
	}

	node.network = n
	n.nodes = append(n.nodes, node)
	n.index[node.ID] = node
	n.Updated = time.Now().UTC()

	return node, nil
}

// resolvableLocked reports whether id resolves here or in an ancestor.
// Caller holds n.mu; ancestor networks take their own locks.
func (n *Network) resolvableLocked(id string) bool {
	if _, ok := n.index[id]; ok {
		return true
	}
	if n.parent != nil {
		return n.parent.Contains(id)
	}
	return false
}

// Contains reports whether id resolves in this network or an ancestor.
func (n *Network) Contains(id string) bool {
	n.mu.RLock()
	_, ok := n.index[id]
	parent := n.parent
	n.mu.RUnlock()
	if ok {
		return true
	}
	if parent != nil {
		return parent.Contains(id)
	}
	return false
}

// Node returns the node with the given identifier within this network.
func (n *Network) Node(id string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	node, ok := n.index[id]
	return node, ok
}

// Nodes returns a defensive copy of the full node slice in insertion order.
func (n *Network) Nodes() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, len(n.nodes))
	copy(out, n.nodes)
	return out
}

// Len returns the number of nodes appended so far.
func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.nodes)
}

// Last returns the most recently appended node, or nil when empty.
func (n *Network) Last() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.nodes) == 0 {
		return nil
	}
	return n.nodes[len(n.nodes)-1]
}

// Root returns the topmost enclosing Network.
func (n *Network) Root() *Network {
	n.mu.RLock()
	parent := n.parent
	n.mu.RUnlock()
	if parent == nil {
		return n
	}
	return parent.Root()
}

// Parent returns the enclosing Network and the delegating node identifier,
// or (nil, "") at the root.
func (n *Network) Parent() (*Network, string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent, n.parentNode
}

// Pending returns the invoke nodes still awaiting execution, in order.
func (n *Network) Pending() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*Node
	for _, node := range n.nodes {
		if node.Pending() {
			out = append(out, node)
		}
	}
	return out
}

// History projects the conversational view used to build model requests:
// role-bearing contents in insertion order, skipping nodes without content.
func (n *Network) History() []Content {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Content, 0, len(n.nodes))
	for _, node := range n.nodes {
		if node.Content != nil && node.Content.Role != "" {
			out = append(out, *node.Content)
		}
	}
	return out
}
