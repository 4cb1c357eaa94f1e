// Package model defines the normalized request/response contract between the
// orchestration engine and language model providers, plus a deterministic
// scripted implementation for tests. Provider adapters live in the openai and
// anthropic subpackages.
package model
