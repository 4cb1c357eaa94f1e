package capability

import (
	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/engine"
)

// SequenceCapability executes a fixed route sequence in order within the
// current Network, feeding each step the result of the previous one. The
// executed leaves are grouped under a contain node so the history records the
// sequence as one structural unit. Execution stops early on a terminal or
// failed step.
type SequenceCapability struct {
	name        string
	description string
	engine      *engine.Engine
	steps       []string
}

// NewSequenceCapability creates a sequence over the given routes. Every step
// must be resolvable from the invoking scope.
func NewSequenceCapability(name, description string, eng *engine.Engine, steps ...string) *SequenceCapability {
	return &SequenceCapability{
		name:        name,
		description: description,
		engine:      eng,
		steps:       steps,
	}
}

// Name returns the route name.
func (c *SequenceCapability) Name() string { return c.name }

// Description returns the routing description.
func (c *SequenceCapability) Description() string { return c.description }

// Parameters returns nil; sequences are addressed by classification.
func (c *SequenceCapability) Parameters() map[string]any { return nil }

// Invoke runs the steps in order.
func (c *SequenceCapability) Invoke(ictx *core.InvokeContext, input core.Content) (*core.Result, error) {
	net := ictx.Network

	inputNode, err := net.Append(core.NewMessageNode(input))
	if err != nil {
		return nil, err
	}

	var executed []*core.Node
	var last *core.Result
	prev := inputNode

	for _, route := range c.steps {
		leaf, err := net.Append(core.NewInvokeNode(route, prev.ID))
		if err != nil {
			return nil, err
		}
		executed = append(executed, leaf)

		res, err := c.engine.ExecuteLeaf(ictx, leaf)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		last = res

		if tail := net.Last(); tail != nil && tail.Content != nil {
			prev = tail
		}
		if res.Terminal || res.Failed {
			break
		}
	}

	if _, err := net.Append(core.NewContainNode(executed...)); err != nil {
		return nil, err
	}

	out := &core.Result{}
	if last != nil {
		*out = *last
	}
	return out, nil
}
