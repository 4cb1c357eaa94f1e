package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/modifier"
	"github.com/hupe1980/agentnet/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, reg *registry.ScopedRegistry, caps ...core.Capability) *core.InvokeContext {
	t.Helper()

	declarations := map[string]core.Capability{}
	for _, c := range caps {
		declarations[c.Name()] = c
	}

	ictx := core.NewInvokeContext(context.Background(), "inv-1", core.NewNetwork(""), nil, 0, nil)
	require.NoError(t, reg.Begin(ictx.Scope, declarations))
	t.Cleanup(func() { reg.End(ictx.Scope) })

	return ictx
}

func echoCapability(name string) core.Capability {
	return core.NewFuncCapability(name, "echoes its input", nil,
		func(_ *core.InvokeContext, input core.Content) (*core.Result, error) {
			return &core.Result{Content: core.TextContent("tool", "echo: "+input.Text())}, nil
		})
}

func TestExecuteLeafAppendsResultAndMarksExecuted(t *testing.T) {
	reg := registry.New()
	ictx := newTestContext(t, reg, echoCapability("echo"))

	_, err := ictx.Network.Append(core.NewMessageNode(core.TextContent("user", "hello")))
	require.NoError(t, err)
	leaf, err := ictx.Network.Append(core.NewInvokeNode("echo"))
	require.NoError(t, err)

	engine := New(reg)
	res, err := engine.ExecuteLeaf(ictx, leaf)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Failed)

	assert.False(t, leaf.Pending())
	last := ictx.Network.Last()
	require.NotNil(t, last.Content)
	assert.Equal(t, "echo: hello", last.Content.Text())
	assert.Equal(t, []string{leaf.ID}, last.Inputs)
}

func TestExecuteLeafUnresolvableRouteIsFatal(t *testing.T) {
	reg := registry.New()
	ictx := newTestContext(t, reg)

	leaf, err := ictx.Network.Append(core.NewInvokeNode("missing"))
	require.NoError(t, err)

	engine := New(reg)
	before := ictx.Network.Len()
	_, err = engine.ExecuteLeaf(ictx, leaf)

	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, before, ictx.Network.Len(), "no node appended for a pre-flight failure")
	assert.True(t, leaf.Pending(), "leaf stays pending when no call was issued")
}

func TestExecuteLeafRetriesTransientFailures(t *testing.T) {
	reg := registry.New()

	calls := 0
	flaky := core.NewFuncCapability("flaky", "fails twice then succeeds", nil,
		func(_ *core.InvokeContext, _ core.Content) (*core.Result, error) {
			calls++
			if calls < 3 {
				return nil, core.Transient("test transport", errors.New("connection reset"))
			}
			return &core.Result{Content: core.TextContent("tool", "recovered")}, nil
		})
	ictx := newTestContext(t, reg, flaky)

	leaf, err := ictx.Network.Append(core.NewInvokeNode("flaky"))
	require.NoError(t, err)

	engine := New(reg, func(o *Options) {
		o.MaxAttempts = 3
		o.InitialBackoff = time.Millisecond
		o.MaxBackoff = 2 * time.Millisecond
	})

	res, err := engine.ExecuteLeaf(ictx, leaf)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Failed)
	assert.Equal(t, 3, calls)

	// Exactly one success node, no error node.
	var errorNodes, resultNodes int
	for _, node := range ictx.Network.Nodes() {
		if node.Failed() {
			errorNodes++
		} else if node.Content != nil {
			resultNodes++
		}
	}
	assert.Zero(t, errorNodes)
	assert.Equal(t, 1, resultNodes)
}

func TestExecuteLeafRecordsErrorNodeAfterRetryExhaustion(t *testing.T) {
	reg := registry.New()

	broken := core.NewFuncCapability("broken", "always fails", nil,
		func(_ *core.InvokeContext, _ core.Content) (*core.Result, error) {
			return nil, core.Transient("test transport", errors.New("unreachable"))
		})
	ictx := newTestContext(t, reg, broken)

	leaf, err := ictx.Network.Append(core.NewInvokeNode("broken"))
	require.NoError(t, err)

	engine := New(reg, func(o *Options) {
		o.MaxAttempts = 2
		o.InitialBackoff = time.Millisecond
	})

	res, err := engine.ExecuteLeaf(ictx, leaf)
	require.NoError(t, err, "retry exhaustion is recovered, not fatal")
	require.NotNil(t, res)
	assert.True(t, res.Failed)

	last := ictx.Network.Last()
	assert.True(t, last.Failed())
	assert.Equal(t, "transient_exhausted", last.ErrorCode)
	assert.False(t, leaf.Pending())
}

func TestExecuteLeafNonTransientFailureIsNotRetried(t *testing.T) {
	reg := registry.New()

	calls := 0
	broken := core.NewFuncCapability("broken", "always fails", nil,
		func(_ *core.InvokeContext, _ core.Content) (*core.Result, error) {
			calls++
			return nil, errors.New("bad arguments")
		})
	ictx := newTestContext(t, reg, broken)

	leaf, err := ictx.Network.Append(core.NewInvokeNode("broken"))
	require.NoError(t, err)

	engine := New(reg, func(o *Options) { o.MaxAttempts = 3 })

	res, err := engine.ExecuteLeaf(ictx, leaf)
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "capability_error", ictx.Network.Last().ErrorCode)
}

func TestExecuteLeafCallLimit(t *testing.T) {
	reg := registry.New()
	echo := echoCapability("echo")

	ictx := core.NewInvokeContext(context.Background(), "inv-1", core.NewNetwork(""), nil, 1, nil)
	require.NoError(t, reg.Begin(ictx.Scope, map[string]core.Capability{"echo": echo}))
	defer reg.End(ictx.Scope)

	first, err := ictx.Network.Append(core.NewInvokeNode("echo"))
	require.NoError(t, err)
	second, err := ictx.Network.Append(core.NewInvokeNode("echo"))
	require.NoError(t, err)

	engine := New(reg)

	res, err := engine.ExecuteLeaf(ictx, first)
	require.NoError(t, err)
	assert.False(t, res.Failed)

	res, err = engine.ExecuteLeaf(ictx, second)
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Equal(t, "call_limit_exceeded", ictx.Network.Last().ErrorCode)
}

func TestExecuteLeafUsesInputReferences(t *testing.T) {
	reg := registry.New()
	ictx := newTestContext(t, reg, echoCapability("echo"))

	a, err := ictx.Network.Append(core.NewMessageNode(core.TextContent("user", "first")))
	require.NoError(t, err)
	_, err = ictx.Network.Append(core.NewMessageNode(core.TextContent("user", "noise")))
	require.NoError(t, err)

	leaf, err := ictx.Network.Append(core.NewInvokeNode("echo", a.ID))
	require.NoError(t, err)

	engine := New(reg)
	res, err := engine.ExecuteLeaf(ictx, leaf)
	require.NoError(t, err)
	assert.Equal(t, "echo: first", res.Content.Text())
}

func TestExecuteLeafPipelineSubstitutesInput(t *testing.T) {
	reg := registry.New()
	ictx := newTestContext(t, reg, echoCapability("echo"))

	_, err := ictx.Network.Append(core.NewMessageNode(core.TextContent("user", "original")))
	require.NoError(t, err)
	leaf, err := ictx.Network.Append(core.NewInvokeNode("echo"))
	require.NoError(t, err)

	pipeline := modifier.NewPipeline(redactingModifier{})
	engine := New(reg, func(o *Options) { o.Pipeline = pipeline })

	res, err := engine.ExecuteLeaf(ictx, leaf)
	require.NoError(t, err)
	assert.Equal(t, "echo: [redacted]", res.Content.Text())

	// The substitution never rewrote history.
	first := ictx.Network.Nodes()[0]
	assert.Equal(t, "original", first.Content.Text())
}

type redactingModifier struct{ modifier.Base }

func (redactingModifier) Name() string { return "redacting" }

func (redactingModifier) Before(_ *core.InvokeContext, _ *core.Network, _ *core.Node, input *core.Content) error {
	*input = core.TextContent(input.Role, "[redacted]")
	return nil
}

func TestRunDrainsPendingAndStopsOnTerminal(t *testing.T) {
	reg := registry.New()

	final := core.NewFuncCapability("final", "finalizes", nil,
		func(_ *core.InvokeContext, _ core.Content) (*core.Result, error) {
			return &core.Result{Content: core.TextContent("assistant", "done"), Terminal: true}, nil
		})
	ictx := newTestContext(t, reg, echoCapability("echo"), final)

	_, err := ictx.Network.Append(core.NewMessageNode(core.TextContent("user", "go")))
	require.NoError(t, err)
	_, err = ictx.Network.Append(core.NewInvokeNode("echo"))
	require.NoError(t, err)
	_, err = ictx.Network.Append(core.NewInvokeNode("final"))
	require.NoError(t, err)

	engine := New(reg)
	res, err := engine.Run(ictx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Terminal)
	assert.Empty(t, ictx.Network.Pending())
}

func TestRunExecutesLeavesAppendedMidRun(t *testing.T) {
	reg := registry.New()

	chained := core.NewFuncCapability("chained", "appends a follow-up leaf", nil,
		func(ictx *core.InvokeContext, _ core.Content) (*core.Result, error) {
			if _, err := ictx.Network.Append(core.NewInvokeNode("echo")); err != nil {
				return nil, err
			}
			return &core.Result{Content: core.TextContent("tool", "chained")}, nil
		})
	ictx := newTestContext(t, reg, echoCapability("echo"), chained)

	_, err := ictx.Network.Append(core.NewMessageNode(core.TextContent("user", "start")))
	require.NoError(t, err)
	_, err = ictx.Network.Append(core.NewInvokeNode("chained"))
	require.NoError(t, err)

	engine := New(reg)
	_, err = engine.Run(ictx)
	require.NoError(t, err)

	assert.Empty(t, ictx.Network.Pending())
	assert.Equal(t, "echo: chained", ictx.Network.Last().Content.Text())
}

func TestRunHonorsImplicitContinuation(t *testing.T) {
	reg := registry.New()

	calls := 0
	stepper := core.NewFuncCapability("stepper", "works in increments", nil,
		func(_ *core.InvokeContext, _ core.Content) (*core.Result, error) {
			calls++
			return &core.Result{
				Content:  core.TextContent("tool", fmt.Sprintf("step %d", calls)),
				Continue: calls < 3,
			}, nil
		})
	ictx := newTestContext(t, reg, stepper)

	_, err := ictx.Network.Append(core.NewInvokeNode("stepper"))
	require.NoError(t, err)

	engine := New(reg)
	_, err = engine.Run(ictx)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Empty(t, ictx.Network.Pending())
	assert.Equal(t, "step 3", ictx.Network.Last().Content.Text())
}

func TestRecoveredFailureAppearsInHistory(t *testing.T) {
	reg := registry.New()

	broken := core.NewFuncCapability("broken", "always fails", nil,
		func(_ *core.InvokeContext, _ core.Content) (*core.Result, error) {
			return nil, errors.New("backend offline")
		})
	ictx := newTestContext(t, reg, broken)

	leaf, err := ictx.Network.Append(core.NewInvokeNode("broken"))
	require.NoError(t, err)

	engine := New(reg, func(o *Options) { o.MaxAttempts = 1 })
	res, err := engine.ExecuteLeaf(ictx, leaf)
	require.NoError(t, err)
	assert.True(t, res.Failed)

	history := ictx.Network.History()
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Contains(t, last.Text(), "backend offline")
	assert.Contains(t, last.Text(), `route "broken" failed`)
}

func TestExecuteLeafAttachesNestedNetwork(t *testing.T) {
	reg := registry.New()

	delegating := core.NewFuncCapability("delegate", "spawns a nested network", nil,
		func(ictx *core.InvokeContext, _ core.Content) (*core.Result, error) {
			nested := core.NewNetwork("")
			if _, err := nested.Append(core.NewMessageNode(core.TextContent("assistant", "inner"))); err != nil {
				return nil, err
			}
			return &core.Result{
				Content: core.TextContent("tool", "delegated"),
				Nested:  nested,
			}, nil
		})
	ictx := newTestContext(t, reg, delegating)

	leaf, err := ictx.Network.Append(core.NewInvokeNode("delegate"))
	require.NoError(t, err)

	engine := New(reg)
	_, err = engine.ExecuteLeaf(ictx, leaf)
	require.NoError(t, err)

	nested := leaf.Child()
	require.NotNil(t, nested)
	parent, parentNode := nested.Parent()
	assert.Same(t, ictx.Network, parent)
	assert.Equal(t, leaf.ID, parentNode)

	// Nested nodes stay out of the parent history.
	for _, c := range ictx.Network.History() {
		assert.NotEqual(t, "inner", c.Text())
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	reg := registry.New()

	ctx, cancel := context.WithCancel(context.Background())
	slow := core.NewFuncCapability("slow", "cancels mid-flight", nil,
		func(ictx *core.InvokeContext, _ core.Content) (*core.Result, error) {
			cancel()
			return nil, ictx.Context.Err()
		})

	ictx := core.NewInvokeContext(ctx, "inv-1", core.NewNetwork(""), nil, 0, nil)
	require.NoError(t, reg.Begin(ictx.Scope, map[string]core.Capability{"slow": slow}))
	defer reg.End(ictx.Scope)

	_, err := ictx.Network.Append(core.NewInvokeNode("slow"))
	require.NoError(t, err)

	engine := New(reg)
	_, err = engine.Run(ictx)
	require.ErrorIs(t, err, context.Canceled)
}
