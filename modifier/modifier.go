// Package modifier implements the middleware pipeline wrapped around node
// execution. Modifiers intercept a leaf node before its capability runs and
// after its result is produced, and may substitute the effective input or
// output seen by the next stage. History stays append-only: modifiers never
// see a mutable view of the Network itself.
package modifier

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentnet/core"
)

// Modifier is middleware attached to a Network's execution. Modifiers run in
// registration order, cooperatively on the engine's goroutine, and must not
// block unboundedly. Side effects are limited to the InvokeContext Scratch
// map threaded alongside the call.
type Modifier interface {
	// Name returns the modifier's identifier used in error wrapping and logs.
	Name() string

	// Before runs ahead of capability invocation. It may replace *input to
	// substitute the effective input seen by the capability.
	Before(ictx *core.InvokeContext, net *core.Network, node *core.Node, input *core.Content) error

	// After runs once a result is available, before it is appended. It may
	// replace *result to substitute the effective output.
	After(ictx *core.InvokeContext, net *core.Network, node *core.Node, result *core.Result) error
}

// Pipeline executes modifiers in registration order.
type Pipeline struct {
	modifiers []Modifier
}

// NewPipeline creates a pipeline with the given modifiers.
func NewPipeline(modifiers ...Modifier) *Pipeline {
	return &Pipeline{modifiers: modifiers}
}

// Add appends a modifier; order of registration defines execution order.
func (p *Pipeline) Add(m Modifier) {
	p.modifiers = append(p.modifiers, m)
}

// Len returns the number of registered modifiers.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.modifiers)
}

// Before runs every modifier's Before hook in order.
func (p *Pipeline) Before(ictx *core.InvokeContext, net *core.Network, node *core.Node, input *core.Content) error {
	if p == nil {
		return nil
	}
	for _, m := range p.modifiers {
		if err := m.Before(ictx, net, node, input); err != nil {
			return fmt.Errorf("modifier %s before hook failed: %w", m.Name(), err)
		}
	}
	return nil
}

// After runs every modifier's After hook in order.
func (p *Pipeline) After(ictx *core.InvokeContext, net *core.Network, node *core.Node, result *core.Result) error {
	if p == nil {
		return nil
	}
	for _, m := range p.modifiers {
		if err := m.After(ictx, net, node, result); err != nil {
			return fmt.Errorf("modifier %s after hook failed: %w", m.Name(), err)
		}
	}
	return nil
}

// Base provides no-op hook implementations for embedding in modifiers that
// only care about one side of the pipeline.
type Base struct{}

// Before is a no-op.
func (Base) Before(*core.InvokeContext, *core.Network, *core.Node, *core.Content) error { return nil }

// After is a no-op.
func (Base) After(*core.InvokeContext, *core.Network, *core.Node, *core.Result) error { return nil }

// InstructionModifier stages a system instruction in the invocation scratch
// map under ScratchInstructions, where model-backed capabilities pick it up
// when building requests.
type InstructionModifier struct {
	Base
	instruction string
}

// ScratchInstructions is the scratch key carrying resolved instructions.
const ScratchInstructions = "instructions"

// NewInstructionModifier creates a modifier staging the given instruction.
func NewInstructionModifier(instruction string) *InstructionModifier {
	return &InstructionModifier{instruction: instruction}
}

// Name returns the modifier's identifier.
func (m *InstructionModifier) Name() string { return "instruction" }

// Before stages the instruction for the upcoming capability call.
func (m *InstructionModifier) Before(ictx *core.InvokeContext, _ *core.Network, _ *core.Node, _ *core.Content) error {
	ictx.Scratch[ScratchInstructions] = m.instruction
	return nil
}

// TimingModifier records per-node execution durations in the scratch map and
// logs them after each node completes.
type TimingModifier struct{}

// NewTimingModifier creates a timing modifier.
func NewTimingModifier() *TimingModifier { return &TimingModifier{} }

// Name returns the modifier's identifier.
func (m *TimingModifier) Name() string { return "timing" }

func timingKey(nodeID string) string { return "timing." + nodeID }

// Before records the node start time.
func (m *TimingModifier) Before(ictx *core.InvokeContext, _ *core.Network, node *core.Node, _ *core.Content) error {
	ictx.Scratch[timingKey(node.ID)] = time.Now()
	return nil
}

// After logs the elapsed duration for the node.
func (m *TimingModifier) After(ictx *core.InvokeContext, _ *core.Network, node *core.Node, _ *core.Result) error {
	start, ok := ictx.Scratch[timingKey(node.ID)].(time.Time)
	if !ok {
		return nil
	}
	ictx.LogDebug("node.executed", "node", node.ID, "route", node.Route, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
