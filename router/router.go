package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/engine"
	"github.com/hupe1980/agentnet/internal/util"
	"github.com/hupe1980/agentnet/logging"
)

// Options configures a Router instance using the functional options pattern.
type Options struct {
	// MaxTurns bounds the number of SELECT_AGENT iterations per invocation.
	// Exhaustion is a non-fatal completion carrying a notice.
	MaxTurns int

	// LoopWindow is the number of recent selections inspected for loops.
	LoopWindow int

	// LoopThreshold is how many identical (route, result) repetitions within
	// the window force finalization.
	LoopThreshold int

	// Required names routes that must be declared at invocation start.
	// A missing one is a fatal pre-flight ConfigurationError.
	Required []string

	// MaxModelCalls caps capability/model calls per invocation, shared with
	// nested delegations. Zero means unlimited.
	MaxModelCalls int

	// Instructions is the system prompt threaded into selection calls.
	Instructions string

	// DeltaBufferSize sets the streaming channel buffer for Stream.
	DeltaBufferSize int

	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger
}

// Response is the terminal outcome of one routed invocation. The router
// always produces one, including after recovered internal failures; Notice
// carries the diagnostic in those cases.
type Response struct {
	InvocationID string            `json:"invocation_id"`
	Content      core.Content      `json:"content"`
	Decisions    []RoutingDecision `json:"decisions,omitempty"`
	Network      *core.Network     `json:"network,omitempty"`
	Notice       string            `json:"notice,omitempty"`
}

// Router is the supervisor driving route selection and execution. It is safe
// for concurrent use: per-invocation state lives in the Network and the
// scoped registry entries installed for that invocation.
type Router struct {
	engine   *engine.Engine
	strategy SelectionStrategy
	opts     Options
}

// New creates a Router executing through the given engine with a fixed
// selection strategy.
func New(eng *engine.Engine, strategy SelectionStrategy, optFns ...func(o *Options)) *Router {
	opts := Options{
		MaxTurns:        8,
		LoopWindow:      6,
		LoopThreshold:   3,
		DeltaBufferSize: 64,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxTurns < 1 {
		opts.MaxTurns = 1
	}

	return &Router{engine: eng, strategy: strategy, opts: opts}
}

// Run executes one routed invocation to completion and returns the terminal
// response. The declared routes are installed into the scoped registry for
// the duration of the invocation only.
func (r *Router) Run(
	ctx context.Context,
	invocationID string,
	decls map[string]core.Capability,
	user core.Content,
) (*Response, error) {
	return r.run(ctx, invocationID, decls, user, nil)
}

// Stream executes one routed invocation while streaming deltas. The delta
// channel closes when the invocation completes; exactly one value is then
// delivered on either the response or the error channel.
func (r *Router) Stream(
	ctx context.Context,
	invocationID string,
	decls map[string]core.Capability,
	user core.Content,
) (<-chan core.Delta, <-chan *Response, <-chan error) {
	deltas := make(chan core.Delta, r.opts.DeltaBufferSize)
	responses := make(chan *Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(responses)
		defer close(errCh)

		resp, err := r.run(ctx, invocationID, decls, user, deltas)
		close(deltas)
		if err != nil {
			errCh <- err
			return
		}
		responses <- resp
	}()

	return deltas, responses, errCh
}

func (r *Router) run(
	ctx context.Context,
	invocationID string,
	decls map[string]core.Capability,
	user core.Content,
	emit chan<- core.Delta,
) (*Response, error) {
	if invocationID == "" {
		invocationID = core.NewID()
	}
	if len(decls) == 0 {
		return nil, core.NewConfigurationError("invocation %s declares no routes", invocationID)
	}
	for _, name := range r.opts.Required {
		if _, ok := decls[name]; !ok {
			return nil, core.NewConfigurationError("required route %q is not declared", name)
		}
	}

	network := core.NewNetwork("")
	ictx := core.NewInvokeContext(ctx, invocationID, network, emit, r.opts.MaxModelCalls, r.opts.Logger)

	if err := r.engine.Registry().Begin(ictx.Scope, decls); err != nil {
		return nil, err
	}
	defer r.engine.Registry().End(ictx.Scope)

	if _, err := network.Append(core.NewMessageNode(user)); err != nil {
		return nil, err
	}

	routes := routeInfos(decls)
	names := make([]string, len(routes))
	for i, info := range routes {
		names[i] = info.Name
	}

	detector := newLoopDetector(r.opts.LoopWindow, r.opts.LoopThreshold)
	var decisions []RoutingDecision
	var lastResult *core.Content

	for turn := 1; turn <= r.opts.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sel, err := r.strategy.Select(ctx, routes, network.History(), r.opts.Instructions)
		if err != nil {
			var cfgErr *core.ConfigurationError
			if errors.As(err, &cfgErr) || ctx.Err() != nil {
				return nil, err
			}
			ictx.LogWarn("router.selection_failed", "turn", turn, "error", err)
			return r.finalize(ictx, decisions,
				core.TextContent("assistant", "I could not decide how to continue with this request."),
				fmt.Sprintf("selection failed: %v", err))
		}

		if sel.Final != nil {
			decisions = append(decisions, RoutingDecision{Route: FinishRoute, Turn: turn})
			return r.finalize(ictx, decisions, *sel.Final, "")
		}

		route, err := matchRoute(sel.Decision.Route, names)
		if err != nil {
			ictx.LogWarn("router.ambiguous_choice", "turn", turn, "choice", sel.Decision.Route)
			return r.finalize(ictx, decisions,
				core.TextContent("assistant", fmt.Sprintf(
					"The selection %q does not match any available route.", sel.Decision.Route)),
				err.Error())
		}

		decision := *sel.Decision
		decision.Route = route
		decision.Turn = turn
		decisions = append(decisions, decision)

		if decision.Arguments != "" {
			if err := validateArguments(decls[route], decision.Arguments); err != nil {
				ictx.LogWarn("router.invalid_arguments", "turn", turn, "route", route, "error", err)
				return r.finalize(ictx, decisions,
					core.TextContent("assistant", fmt.Sprintf(
						"The call to %q carried invalid arguments.", route)),
					fmt.Sprintf("invalid arguments for route %q: %v", route, err))
			}
		}

		leaf, err := r.appendLeaf(network, decision)
		if err != nil {
			return nil, err
		}

		ictx.LogDebug("router.selected", "turn", turn, "route", route)

		res, err := r.engine.ExecuteLeaf(ictx.WithRoute(route, turn), leaf)
		if err != nil {
			return nil, err
		}

		digest := ""
		if res != nil {
			digest = res.Content.Text()
			lastResult = &res.Content
			if res.Terminal {
				return r.finalize(ictx, decisions, res.Content, "")
			}
		}

		if detector.observe(route, digest) {
			ictx.LogWarn("router.loop_detected", "route", route, "turn", turn)
			content := core.TextContent("assistant", fmt.Sprintf(
				"Stopping: route %q keeps producing the same result.", route))
			if lastResult != nil {
				content = *lastResult
			}
			return r.finalize(ictx, decisions, content,
				fmt.Sprintf("loop detected on route %q", route))
		}
	}

	// Turn budget exhausted: complete with the best effort so far.
	content := core.TextContent("assistant",
		"The turn budget was exhausted before a final answer was produced.")
	if lastResult != nil {
		content = *lastResult
	}
	return r.finalize(ictx, decisions, content, "turn budget exhausted")
}

// appendLeaf appends the invoke node for a decision. Structured-call
// arguments become a data node feeding the leaf so the capability receives
// them as its effective input.
func (r *Router) appendLeaf(network *core.Network, decision RoutingDecision) (*core.Node, error) {
	if decision.Arguments == "" {
		return network.Append(core.NewInvokeNode(decision.Route))
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(decision.Arguments), &args); err != nil {
		args = map[string]any{"raw": decision.Arguments}
	}
	argsNode, err := network.Append(core.NewMessageNode(core.Content{
		Role:  "user",
		Parts: []core.Part{core.DataPart{Data: args}},
	}))
	if err != nil {
		return nil, err
	}

	return network.Append(core.NewInvokeNode(decision.Route, argsNode.ID))
}

// validateArguments checks raw structured-call JSON against the route's
// declared schema. Routes without a schema accept anything.
func validateArguments(impl core.Capability, raw string) error {
	schema := impl.Parameters()
	if schema == nil {
		return nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	return util.ValidateArguments(args, schema)
}

// finalize appends the terminal node, emits the final delta and builds the
// response.
func (r *Router) finalize(
	ictx *core.InvokeContext,
	decisions []RoutingDecision,
	content core.Content,
	notice string,
) (*Response, error) {
	if content.Role == "" {
		content.Role = "assistant"
	}

	node := core.NewMessageNode(content)
	node.Terminal = true
	if _, err := ictx.Network.Append(node); err != nil {
		return nil, err
	}

	if err := ictx.EmitDelta(content, false); err != nil {
		ictx.LogDebug("router.final_delta_dropped", "error", err)
	}

	return &Response{
		InvocationID: ictx.InvocationID,
		Content:      content,
		Decisions:    decisions,
		Network:      ictx.Network,
		Notice:       notice,
	}, nil
}
