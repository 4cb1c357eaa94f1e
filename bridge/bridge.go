// Package bridge converts losslessly between the internal typed content model
// and an external flat role/content request-response schema, including
// streaming deltas. The two sides evolve independently: unknown external
// fields pass through opaquely, and internal modalities with no flat
// representation degrade to visible placeholders rather than being dropped.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/hupe1980/agentnet/core"
)

// attachmentRe matches the inline attachment-reference syntax used to carry
// file parts through flat text content.
var attachmentRe = regexp.MustCompile(`\[attachment:([^\]]+)\]`)

// AttachmentRef renders the inline reference syntax for a file reference.
func AttachmentRef(ref string) string { return fmt.Sprintf("[attachment:%s]", ref) }

// ToolCall is a structured invocation carried on an external message.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is one entry of the external flat schema. Fields the bridge does
// not recognize survive round-trips through Extra.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
	Extra      map[string]json.RawMessage
}

// knownMessageFields are owned by the typed fields above; everything else
// lands in Extra.
var knownMessageFields = map[string]struct{}{
	"role": {}, "content": {}, "tool_call_id": {}, "tool_calls": {},
}

// MarshalJSON emits the typed fields plus any opaque passthrough fields.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+4)
	for k, v := range m.Extra {
		if _, known := knownMessageFields[k]; known {
			continue
		}
		out[k] = v
	}

	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}

	if err := put("role", m.Role); err != nil {
		return nil, err
	}
	if err := put("content", m.Content); err != nil {
		return nil, err
	}
	if m.ToolCallID != "" {
		if err := put("tool_call_id", m.ToolCallID); err != nil {
			return nil, err
		}
	}
	if len(m.ToolCalls) > 0 {
		if err := put("tool_calls", m.ToolCalls); err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}

// UnmarshalJSON fills the typed fields and retains unrecognized fields in
// Extra for forward compatibility.
func (m *Message) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["role"]; ok {
		if err := json.Unmarshal(v, &m.Role); err != nil {
			return err
		}
	}
	if v, ok := raw["content"]; ok {
		if err := json.Unmarshal(v, &m.Content); err != nil {
			return err
		}
	}
	if v, ok := raw["tool_call_id"]; ok {
		if err := json.Unmarshal(v, &m.ToolCallID); err != nil {
			return err
		}
	}
	if v, ok := raw["tool_calls"]; ok {
		if err := json.Unmarshal(v, &m.ToolCalls); err != nil {
			return err
		}
	}

	for k, v := range raw {
		if _, known := knownMessageFields[k]; known {
			continue
		}
		if m.Extra == nil {
			m.Extra = map[string]json.RawMessage{}
		}
		m.Extra[k] = v
	}

	return nil
}

// Request is the external request envelope.
type Request struct {
	Messages  []Message      `json:"messages"`
	Stream    bool           `json:"stream,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

// ToExternal converts an ordered internal sequence into an external request,
// preserving role, order, attachment references and tool-call/result pairing.
// Modalities with no flat representation are replaced with a visible
// placeholder; the returned error joins the corresponding
// *core.UnsupportedContentError values while the request stays fully usable.
func ToExternal(contents []core.Content) (*Request, error) {
	req := &Request{Messages: make([]Message, 0, len(contents))}
	var recovered []error

	for _, c := range contents {
		msgs, errs := renderContent(c)
		req.Messages = append(req.Messages, msgs...)
		recovered = append(recovered, errs...)
	}

	return req, errors.Join(recovered...)
}

// renderContent maps one internal content to one or more flat messages.
// Tool responses become dedicated role "tool" messages keyed by ToolCallID so
// pairing survives the flat schema.
func renderContent(c core.Content) ([]Message, []error) {
	var (
		messages  []Message
		recovered []error
		text      string
		toolCalls []ToolCall
	)

	for _, p := range c.Parts {
		switch part := p.(type) {
		case core.TextPart:
			text += part.Text
		case core.FilePart:
			ref := part.Ref()
			if ref == "" {
				text += "[unsupported content: file]"
				recovered = append(recovered, &core.UnsupportedContentError{Modality: "inline file"})
				continue
			}
			text += AttachmentRef(ref)
		case core.DataPart:
			raw, err := json.Marshal(part.Data)
			if err != nil {
				text += "[unsupported content: data]"
				recovered = append(recovered, &core.UnsupportedContentError{Modality: "data"})
				continue
			}
			text += string(raw)
		case core.FunctionCallPart:
			toolCalls = append(toolCalls, ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Arguments,
			})
		case core.FunctionResponsePart:
			messages = append(messages, Message{
				Role:       "tool",
				ToolCallID: part.FunctionResponse.ID,
				Content:    renderResponse(part.FunctionResponse),
			})
		default:
			text += fmt.Sprintf("[unsupported content: %T]", p)
			recovered = append(recovered, &core.UnsupportedContentError{Modality: fmt.Sprintf("%T", p)})
		}
	}

	if text != "" || len(toolCalls) > 0 {
		msg := Message{Role: c.Role, Content: text, ToolCalls: toolCalls}
		// Tool responses rendered above already carry the role "tool" label;
		// keep the surrounding message ahead of them in order.
		messages = append([]Message{msg}, messages...)
	}

	return messages, recovered
}

func renderResponse(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return fr.Error
	}
	if s, ok := fr.Response.(string); ok {
		return s
	}
	raw, err := json.Marshal(fr.Response)
	if err != nil {
		return fmt.Sprintf("%v", fr.Response)
	}
	return string(raw)
}

// FromExternal converts one external message into an internal content entry,
// parsing inline attachment references back into file parts and tool calls
// back into function-call parts.
func FromExternal(msg Message) (core.Content, error) {
	if msg.Role == "tool" {
		return core.Content{Role: "tool", Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID:       msg.ToolCallID,
				Response: msg.Content,
			}},
		}}, nil
	}

	parts := parseText(msg.Content)
	for _, tc := range msg.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		}})
	}

	return core.Content{Role: msg.Role, Parts: parts}, nil
}

// FromExternalAll converts an ordered external sequence.
func FromExternalAll(msgs []Message) ([]core.Content, error) {
	out := make([]core.Content, 0, len(msgs))
	for _, m := range msgs {
		c, err := FromExternal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// parseText splits flat text into interleaved text and file parts, keeping
// attachment references at their original positions.
func parseText(text string) []core.Part {
	if text == "" {
		return nil
	}

	var parts []core.Part
	last := 0
	for _, loc := range attachmentRe.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > last {
			parts = append(parts, core.TextPart{Text: text[last:loc[0]]})
		}
		parts = append(parts, core.FilePart{URI: text[loc[2]:loc[3]]})
		last = loc[1]
	}
	if last < len(text) {
		parts = append(parts, core.TextPart{Text: text[last:]})
	}

	return parts
}
