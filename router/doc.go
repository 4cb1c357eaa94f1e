// Package router implements the supervisor loop that drives a multi-route
// conversation: SELECT_AGENT picks the next route via a selection strategy,
// AWAIT_RESULT executes the routed leaf through the engine, and the loop
// either re-selects or finalizes.
//
// The selection strategy is fixed per router. ClassificationStrategy issues
// one model call choosing a name from the enumerated closed set (with an
// optional rationale); StructuredCallStrategy issues one model call emitting
// a function-style invocation whose arguments are validated against the
// route's declared schema.
//
// Selection output that matches no registered route falls back to the closest
// case-insensitive prefix match; a tie or a miss is a recovered
// RoutingAmbiguityError and the router finalizes with an explanation rather
// than picking an arbitrary route. A bounded window over recent selections
// detects loops: the same route repeating past the threshold with identical
// result content forces finalization with a diagnostic. Exhausting the turn
// budget is a non-fatal completion carrying a notice.
//
// Route declarations are installed into the scoped registry at the start of
// each invocation and removed by a deferred teardown on every exit path.
package router
