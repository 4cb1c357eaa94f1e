// Package agentnet provides a high-level façade over the scoped registry,
// execution engine and supervisor router, enabling rapid construction of
// multi-route reasoning systems. Most applications interact with this package
// by:
//  1. Creating an AgentNet via New() (or NewFromConfig() for the YAML surface)
//  2. Registering one or more capabilities (model-backed, delegating, custom)
//  3. Running invocations synchronously (Run) or with streaming (Stream)
//
// The façade delegates orchestration to router.Router and engine.Engine while
// keeping setup ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// structured logger and provider-backed models.
package agentnet

import (
	"context"
	"sync"

	"github.com/hupe1980/agentnet/capability"
	"github.com/hupe1980/agentnet/config"
	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/engine"
	"github.com/hupe1980/agentnet/logging"
	"github.com/hupe1980/agentnet/model"
	"github.com/hupe1980/agentnet/modifier"
	"github.com/hupe1980/agentnet/registry"
	"github.com/hupe1980/agentnet/router"
	"github.com/hupe1980/agentnet/store"
)

// Options configures the AgentNet instance.
type Options struct {
	// Strategy selects how routes are chosen per turn. Defaults to
	// classification.
	Strategy router.SelectionStrategy

	// EngineOptions tune leaf execution (retries, backoff, timeouts,
	// modifier pipeline).
	EngineOptions []func(o *engine.Options)

	// RouterOptions tune the supervisor loop (turn budget, loop detection,
	// required routes).
	RouterOptions []func(o *router.Options)

	// Pipeline is the modifier pipeline wrapped around leaf execution.
	Pipeline *modifier.Pipeline

	// Store retains completed invocation responses when set.
	Store store.Store

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// AgentNet is the high-level façade aggregating the registry, engine and
// router plus the registered capability set.
type AgentNet struct {
	registry *registry.ScopedRegistry
	engine   *engine.Engine
	router   *router.Router
	store    store.Store

	mu     sync.RWMutex
	routes map[string]core.Capability
}

// New creates a new AgentNet instance driven by the given model.
func New(m model.Model, optFns ...func(o *Options)) *AgentNet {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Strategy == nil {
		opts.Strategy = router.NewClassificationStrategy(m)
	}

	reg := registry.New()

	engineOpts := append([]func(o *engine.Options){func(o *engine.Options) {
		o.Logger = opts.Logger
		o.Pipeline = opts.Pipeline
	}}, opts.EngineOptions...)
	eng := engine.New(reg, engineOpts...)

	routerOpts := append([]func(o *router.Options){func(o *router.Options) {
		o.Logger = opts.Logger
	}}, opts.RouterOptions...)
	rtr := router.New(eng, opts.Strategy, routerOpts...)

	return &AgentNet{
		registry: reg,
		engine:   eng,
		router:   rtr,
		store:    opts.Store,
		routes:   map[string]core.Capability{},
	}
}

// NewFromConfig builds an AgentNet from the declarative YAML surface. Leaf
// routes become model-backed capabilities; routes with nested declarations
// become delegating capabilities running in a child scope.
func NewFromConfig(cfg *config.Config, m model.Model, optFns ...func(o *Options)) (*AgentNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := New(m, append([]func(o *Options){func(o *Options) {
		if cfg.Strategy == config.StrategyStructuredCall {
			o.Strategy = router.NewStructuredCallStrategy(m)
		}
		o.EngineOptions = append(o.EngineOptions, func(eo *engine.Options) {
			if cfg.MaxAttempts > 0 {
				eo.MaxAttempts = cfg.MaxAttempts
			}
		})
		o.RouterOptions = append(o.RouterOptions, func(ro *router.Options) {
			if cfg.MaxTurns > 0 {
				ro.MaxTurns = cfg.MaxTurns
			}
			if cfg.LoopWindow > 0 {
				ro.LoopWindow = cfg.LoopWindow
			}
			if cfg.LoopThreshold > 0 {
				ro.LoopThreshold = cfg.LoopThreshold
			}
			ro.MaxModelCalls = cfg.MaxModelCalls
			ro.Required = cfg.Required
			ro.Instructions = cfg.Instructions
		})
	}}, optFns...)...)

	for name, route := range cfg.Routes {
		a.Register(a.buildRoute(name, route, m))
	}

	return a, nil
}

// buildRoute converts one declared route into a capability, recursing into
// nested declarations.
func (a *AgentNet) buildRoute(name string, route config.Route, m model.Model) core.Capability {
	if len(route.Routes) == 0 {
		return capability.NewModelCapability(name, route.Description, m,
			func(o *capability.ModelCapabilityOptions) {
				o.Instructions = route.SystemMessage
				o.Parameters = route.Schema
				o.Terminal = route.Terminal
			})
	}

	nested := make(map[string]core.Capability, len(route.Routes))
	for childName, child := range route.Routes {
		nested[childName] = a.buildRoute(childName, child, m)
	}

	return capability.NewDelegateCapability(name, route.Description, a.engine, route.Entry, nested)
}

// Register adds a capability to the route set used by subsequent invocations.
// Registering an existing name replaces it.
func (a *AgentNet) Register(c core.Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[c.Name()] = c
}

// Routes returns a copy of the registered capability set.
func (a *AgentNet) Routes() map[string]core.Capability {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]core.Capability, len(a.routes))
	for name, c := range a.routes {
		out[name] = c
	}
	return out
}

// Run executes one routed invocation to completion. The response is retained
// when a store is configured.
func (a *AgentNet) Run(ctx context.Context, user core.Content) (*router.Response, error) {
	resp, err := a.router.Run(ctx, core.NewID(), a.Routes(), user)
	if err != nil {
		return nil, err
	}
	if a.store != nil {
		if saveErr := a.store.Save(resp); saveErr != nil {
			return resp, saveErr
		}
	}
	return resp, nil
}

// RunText is a convenience wrapper taking and returning plain text.
func (a *AgentNet) RunText(ctx context.Context, text string) (string, error) {
	resp, err := a.Run(ctx, core.TextContent("user", text))
	if err != nil {
		return "", err
	}
	return resp.Content.Text(), nil
}

// Stream executes one routed invocation while streaming deltas.
func (a *AgentNet) Stream(
	ctx context.Context,
	user core.Content,
) (<-chan core.Delta, <-chan *router.Response, <-chan error) {
	return a.router.Stream(ctx, core.NewID(), a.Routes(), user)
}

// Engine exposes the underlying execution engine.
func (a *AgentNet) Engine() *engine.Engine { return a.engine }

// Router exposes the underlying supervisor router.
func (a *AgentNet) Router() *router.Router { return a.router }

// Registry exposes the underlying scoped registry.
func (a *AgentNet) Registry() *registry.ScopedRegistry { return a.registry }
