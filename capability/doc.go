// Package capability provides reusable Capability implementations: model-
// backed capabilities that answer from conversation history, and delegating
// capabilities that run a nested invocation in its own Network and registry
// scope. Plain Go functions are adapted via core.FuncCapability.
package capability
