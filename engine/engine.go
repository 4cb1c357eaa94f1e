package engine

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/logging"
	"github.com/hupe1980/agentnet/modifier"
	"github.com/hupe1980/agentnet/registry"
)

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// MaxAttempts bounds capability invocations per leaf, counting the first
	// try. Only transient transport failures and per-leaf timeouts consume
	// additional attempts.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; it doubles per
	// retry up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// LeafTimeout bounds a single capability invocation. Zero disables the
	// per-leaf deadline. An expired deadline counts as a transient failure.
	LeafTimeout time.Duration

	// Pipeline is the modifier pipeline wrapped around node execution.
	// A nil pipeline is valid and runs no hooks.
	Pipeline *modifier.Pipeline

	// Logger provides structured logging. Defaults to NoOp if nil.
	Logger logging.Logger
}

// Engine drives pending invoke nodes against capabilities resolved through
// the scoped registry. It is safe for concurrent use; each invocation carries
// its own Network and InvokeContext.
type Engine struct {
	registry *registry.ScopedRegistry
	opts     Options
}

// New creates an Engine bound to the given registry.
func New(reg *registry.ScopedRegistry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	return &Engine{registry: reg, opts: opts}
}

// Registry returns the scoped registry this engine resolves against.
func (e *Engine) Registry() *registry.ScopedRegistry { return e.registry }

// Run drains the Network's pending leaves in order until none remain, a
// terminal result is produced, or a fatal error occurs. Capabilities may
// append further pending leaves during execution; the pending set is re-read
// after each pass. A result requesting implicit continuation gets a follow-up
// invoke node on the same route, fed by the result just produced, so a
// capability can keep working in increments without appending nodes itself.
func (e *Engine) Run(ictx *core.InvokeContext) (*core.Result, error) {
	var last *core.Result

	for {
		if err := ictx.Err(); err != nil {
			return last, err
		}

		pending := ictx.Network.Pending()
		if len(pending) == 0 {
			return last, nil
		}

		for _, node := range pending {
			res, err := e.ExecuteLeaf(ictx, node)
			if err != nil {
				return last, err
			}
			if res != nil {
				last = res
				if res.Terminal {
					return last, nil
				}
				if res.Continue && !res.Failed {
					ref := node.ID
					if tail := ictx.Network.Last(); tail != nil && tail.Content != nil {
						ref = tail.ID
					}
					if _, err := ictx.Network.Append(core.NewInvokeNode(node.Route, ref)); err != nil {
						return last, err
					}
				}
			}
		}
	}
}

// ExecuteLeaf executes a single pending invoke node. It returns the
// capability result (Failed set for recovered errors, recorded as an error
// node) or a fatal error. Executing a non-pending node is a no-op.
func (e *Engine) ExecuteLeaf(ictx *core.InvokeContext, node *core.Node) (*core.Result, error) {
	if !node.Pending() {
		return nil, nil
	}
	net := ictx.Network

	impl, ok := e.registry.Resolve(ictx.Scope, node.Route)
	if !ok {
		return nil, core.NewConfigurationError(
			"route %q is not registered in scope %s", node.Route, ictx.Scope.Key())
	}

	input := effectiveInput(net, node)
	if err := e.opts.Pipeline.Before(ictx, net, node, &input); err != nil {
		return nil, err
	}

	if err := ictx.Limiter.Increment(); err != nil {
		return e.recoverFailure(ictx, net, node, "call_limit_exceeded", err)
	}

	res, err := e.invokeWithRetry(ictx, impl, node, input)
	if err != nil {
		var cfgErr *core.ConfigurationError
		if errors.As(err, &cfgErr) || ictx.Err() != nil {
			return nil, err
		}
		return e.recoverFailure(ictx, net, node, errorCode(err), err)
	}
	if res == nil {
		res = &core.Result{}
	}

	if err := e.opts.Pipeline.After(ictx, net, node, res); err != nil {
		return nil, err
	}

	node.MarkExecuted()
	if res.Nested != nil {
		node.AttachChild(res.Nested)
	}
	if res.Content.Role != "" || len(res.Content.Parts) > 0 {
		if _, err := net.Append(core.NewResultNode(node, res.Content, res.Terminal)); err != nil {
			return nil, err
		}
	}

	ictx.LogDebug("leaf.executed",
		"node", node.ID, "route", node.Route, "terminal", res.Terminal)

	return res, nil
}

// recoverFailure records a recovered capability failure as an error node and
// keeps execution alive.
func (e *Engine) recoverFailure(
	ictx *core.InvokeContext,
	net *core.Network,
	node *core.Node,
	code string,
	cause error,
) (*core.Result, error) {
	node.MarkExecuted()
	if _, err := net.Append(core.NewErrorNode(node, code, cause)); err != nil {
		return nil, err
	}

	ictx.LogWarn("leaf.failed", "node", node.ID, "route", node.Route, "code", code, "error", cause)

	return &core.Result{
		Content: core.TextContent("tool", cause.Error()),
		Failed:  true,
	}, nil
}

// invokeWithRetry calls the capability, retrying transient failures with
// exponential backoff. Context cancellation and non-transient errors return
// immediately.
func (e *Engine) invokeWithRetry(
	ictx *core.InvokeContext,
	impl core.Capability,
	node *core.Node,
	input core.Content,
) (*core.Result, error) {
	backoff := e.opts.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		res, err := e.invokeOnce(ictx, impl, input)
		if err == nil {
			return res, nil
		}
		if ictx.Err() != nil {
			return nil, ictx.Err()
		}
		if !retryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt == e.opts.MaxAttempts {
			break
		}

		ictx.LogWarn("leaf.retry",
			"route", node.Route, "attempt", attempt, "backoff", backoff.String(), "error", err)

		select {
		case <-ictx.Done():
			return nil, ictx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > e.opts.MaxBackoff {
			backoff = e.opts.MaxBackoff
		}
	}

	return nil, lastErr
}

// invokeOnce runs one capability invocation under the optional per-leaf
// deadline.
func (e *Engine) invokeOnce(
	ictx *core.InvokeContext,
	impl core.Capability,
	input core.Content,
) (*core.Result, error) {
	if e.opts.LeafTimeout <= 0 {
		return impl.Invoke(ictx, input)
	}

	tctx, cancel := context.WithTimeout(ictx.Context, e.opts.LeafTimeout)
	defer cancel()

	scoped := *ictx
	scoped.Context = tctx

	return impl.Invoke(&scoped, input)
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	return core.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "leaf_timeout"
	case core.IsTransient(err):
		return "transient_exhausted"
	default:
		return "capability_error"
	}
}

// effectiveInput derives the content fed to the capability: the concatenated
// contents of the leaf's input references when present, otherwise the most
// recent conversational entry.
func effectiveInput(net *core.Network, node *core.Node) core.Content {
	if len(node.Inputs) > 0 {
		var parts []core.Part
		role := ""
		for _, ref := range node.Inputs {
			src, ok := lookup(net, ref)
			if !ok || src.Content == nil {
				continue
			}
			if role == "" {
				role = src.Content.Role
			}
			parts = append(parts, src.Content.Parts...)
		}
		if role == "" {
			role = "user"
		}
		return core.Content{Role: role, Parts: parts}
	}

	history := net.History()
	if len(history) > 0 {
		return history[len(history)-1]
	}
	return core.Content{}
}

// lookup resolves a node reference in the network or an ancestor.
func lookup(net *core.Network, id string) (*core.Node, bool) {
	for n := net; n != nil; {
		if node, ok := n.Node(id); ok {
			return node, true
		}
		parent, _ := n.Parent()
		n = parent
	}
	return nil, false
}
