// Package core defines the foundational data model of AgentNet: Networks
// (append-only execution histories), Nodes (capability-tagged units within a
// Network), the typed message/content model, the capability contract bound to
// leaf nodes, invocation scopes and contexts, and the shared error taxonomy.
//
// Everything else in the module builds on this package; it has no internal
// dependencies besides logging.
package core
