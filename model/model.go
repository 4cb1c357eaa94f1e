package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentnet/core"
)

// ToolDefinition declaratively exposes a callable route to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (route) exposed to the
// model. Parameters is a JSON Schema object (minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the engine and the
// router's selection strategies.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation. Generate
// returns a response channel (partial chunks then a final response) and an
// error channel; both are closed when the call completes.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Final drains the channels returned by Generate and returns the final
// (non-partial) response, or the first error encountered.
func Final(respCh <-chan Response, errCh <-chan error) (*Response, error) {
	var final *Response
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !resp.Partial {
				r := resp
				final = &r
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if final == nil {
		return nil, fmt.Errorf("model produced no final response")
	}
	return final, nil
}

// ScriptedModel is a deterministic in-memory Model for tests and examples.
// Turns are consumed in order; when the script is exhausted, prompt-keyed
// canned replies apply, then a generic echo. Safe for concurrent use.
type ScriptedModel struct {
	mu        sync.Mutex
	info      Info
	turns     [][]Response
	responses map[string]string
	errs      []error
	calls     int
}

// NewScriptedModel constructs a ScriptedModel with tool support enabled.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{
		info:      Info{Name: name, Provider: "scripted", SupportsTools: true},
		responses: map[string]string{},
	}
}

// AddResponse registers a canned completion keyed by the exact text of the
// last request content.
func (m *ScriptedModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// EnqueueText schedules a plain assistant text turn.
func (m *ScriptedModel) EnqueueText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, []Response{{
		Content:      core.TextContent("assistant", text),
		FinishReason: "stop",
	}})
}

// EnqueueToolCall schedules a structured invocation turn.
func (m *ScriptedModel) EnqueueToolCall(id, name, arguments string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, []Response{{
		Content: core.Content{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: arguments}},
		}},
		FinishReason: "tool_calls",
	}})
}

// EnqueueResponses schedules an explicit chunk sequence for one turn.
func (m *ScriptedModel) EnqueueResponses(chunks ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, chunks)
}

// EnqueueError schedules a turn that fails with err.
func (m *ScriptedModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, nil)
	m.errs = append(m.errs, err)
}

// Calls returns how many Generate calls have been made.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls++
	var turn []Response
	var scriptedErr error
	if len(m.turns) > 0 {
		turn = m.turns[0]
		m.turns = m.turns[1:]
		if turn == nil && len(m.errs) > 0 {
			scriptedErr = m.errs[0]
			m.errs = m.errs[1:]
		}
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if scriptedErr != nil {
			errCh <- scriptedErr
			return
		}

		if turn == nil {
			turn = []Response{{
				Content:      core.TextContent("assistant", m.fallbackReply(req)),
				FinishReason: "stop",
			}}
		}

		for _, chunk := range turn {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- chunk:
			}
		}
	}()

	return respCh, errCh
}

func (m *ScriptedModel) fallbackReply(req Request) string {
	var last string
	if len(req.Contents) > 0 {
		last = req.Contents[len(req.Contents)-1].Text()
	}
	m.mu.Lock()
	reply, ok := m.responses[last]
	m.mu.Unlock()
	if ok {
		return reply
	}
	return fmt.Sprintf("Scripted response to: %s", last)
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
