// Package engine implements the execution layer that drives pending invoke
// nodes within a Network.
//
// The Engine walks the Network's pending leaves in order and, for each one:
//
//  1. Resolves the bound route through the scoped registry. A miss is a fatal
//     *core.ConfigurationError: no capability call is issued for the leaf.
//  2. Derives the effective input from the leaf's input references, falling
//     back to the most recent conversational entry.
//  3. Runs the modifier pipeline's Before hooks, which may substitute the
//     effective input.
//  4. Invokes the capability, retrying transient transport failures and
//     per-leaf timeouts with bounded exponential backoff.
//  5. Runs the After hooks, appends the result (or a recovered error node)
//     and marks the leaf executed.
//
// Failures are split into two families. Fatal errors (unresolvable routes,
// pipeline faults, context cancellation) abort the run and propagate to the
// caller. Recovered errors (retry exhaustion, capability failures, call-budget
// exhaustion) are appended to the Network as error nodes and execution
// continues, so later leaves and the supervisor can react to them.
//
// A nested Network produced by a delegating capability is attached to the
// originating leaf for observability; its nodes are never merged into the
// parent history.
package engine
