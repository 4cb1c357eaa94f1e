package capability

import (
	"errors"

	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/model"
	"github.com/hupe1980/agentnet/modifier"
)

// ModelCapabilityOptions configures a ModelCapability instance.
type ModelCapabilityOptions struct {
	// Instructions is the system prompt. A staged instruction in the
	// invocation scratch map takes precedence.
	Instructions string

	// MaxHistory bounds the conversation window sent to the model; zero
	// keeps the full history.
	MaxHistory int

	// Streaming enables partial-response emission through the invocation's
	// delta channel.
	Streaming bool

	// Terminal marks this capability's answers as conversation-ending.
	Terminal bool

	// Parameters optionally declares a structured-call argument schema.
	Parameters map[string]any
}

// ModelCapability answers by issuing one model call over the conversation
// history. Partial chunks stream through the invocation context; the final
// response becomes the capability result.
type ModelCapability struct {
	name        string
	description string
	llm         model.Model
	opts        ModelCapabilityOptions
}

// NewModelCapability creates a model-backed capability.
func NewModelCapability(name, description string, llm model.Model, optFns ...func(o *ModelCapabilityOptions)) *ModelCapability {
	opts := ModelCapabilityOptions{
		MaxHistory: 20,
		Streaming:  true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelCapability{
		name:        name,
		description: description,
		llm:         llm,
		opts:        opts,
	}
}

// Name returns the route name.
func (c *ModelCapability) Name() string { return c.name }

// Description returns the routing description.
func (c *ModelCapability) Description() string { return c.description }

// Parameters returns the declared argument schema (possibly nil).
func (c *ModelCapability) Parameters() map[string]any { return c.opts.Parameters }

// Invoke issues one model call. Model failures surface as returned errors so
// the engine's retry policy applies.
func (c *ModelCapability) Invoke(ictx *core.InvokeContext, input core.Content) (*core.Result, error) {
	req := model.Request{
		Instructions: c.instructions(ictx),
		Contents:     c.window(ictx, input),
		Stream:       c.opts.Streaming,
	}

	respCh, errCh := c.llm.Generate(ictx.Context, req)

	var final *model.Response
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if err := ictx.EmitDelta(resp.Content, true); err != nil {
					return nil, err
				}
				continue
			}
			r := resp
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if final == nil {
		return nil, core.Transient("model generate", errors.New("no final response"))
	}

	return &core.Result{Content: final.Content, Terminal: c.opts.Terminal}, nil
}

// instructions resolves the effective system prompt: a staged instruction in
// the scratch map wins over the configured one.
func (c *ModelCapability) instructions(ictx *core.InvokeContext) string {
	if staged, ok := ictx.Scratch[modifier.ScratchInstructions].(string); ok && staged != "" {
		return staged
	}
	return c.opts.Instructions
}

// window builds the conversation sent to the model: the bounded history with
// the (possibly substituted) effective input as its latest entry.
func (c *ModelCapability) window(ictx *core.InvokeContext, input core.Content) []core.Content {
	history := ictx.Network.History()
	if c.opts.MaxHistory > 0 && len(history) > c.opts.MaxHistory {
		history = history[len(history)-c.opts.MaxHistory:]
	}

	if len(history) > 0 && history[len(history)-1].Role == input.Role {
		history[len(history)-1] = input
		return history
	}
	if input.Role != "" || len(input.Parts) > 0 {
		history = append(history, input)
	}
	return history
}
