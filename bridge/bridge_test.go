package bridge

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/agentnet/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToExternalPreservesRoleOrderAndAttachments(t *testing.T) {
	contents := []core.Content{
		core.TextContent("system", "be brief"),
		{Role: "user", Parts: []core.Part{
			core.TextPart{Text: "summarize "},
			core.FilePart{URI: "s3://bucket/report.pdf"},
			core.TextPart{Text: " please"},
		}},
		core.TextContent("assistant", "done"),
	}

	req, err := ToExternal(contents)
	require.NoError(t, err)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "summarize [attachment:s3://bucket/report.pdf] please", req.Messages[1].Content)
}

func TestToExternalPreservesToolCallPairing(t *testing.T) {
	contents := []core.Content{
		{Role: "assistant", Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "fc-1", Name: "search", Arguments: `{"q":"go"}`}},
		}},
		{Role: "tool", Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "fc-1", Name: "search", Response: "3 results"}},
		}},
	}

	req, err := ToExternal(contents)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)

	require.Len(t, req.Messages[0].ToolCalls, 1)
	assert.Equal(t, "fc-1", req.Messages[0].ToolCalls[0].ID)
	assert.Equal(t, "tool", req.Messages[1].Role)
	assert.Equal(t, "fc-1", req.Messages[1].ToolCallID)
	assert.Equal(t, "3 results", req.Messages[1].Content)
}

func TestToExternalSubstitutesPlaceholderForUnsupportedContent(t *testing.T) {
	contents := []core.Content{
		{Role: "user", Parts: []core.Part{
			core.TextPart{Text: "look at this: "},
			core.FilePart{Bytes: []byte{0x1, 0x2}}, // no URI, no name
		}},
	}

	req, err := ToExternal(contents)

	var unsupported *core.UnsupportedContentError
	require.ErrorAs(t, err, &unsupported)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "look at this: [unsupported content: file]", req.Messages[0].Content)
}

func TestRoundTripReproducesRoleOrderAndRefs(t *testing.T) {
	original := &Request{Messages: []Message{
		{Role: "user", Content: "read [attachment:doc-1] and [attachment:doc-2]"},
		{Role: "assistant", Content: "summary of both"},
	}}

	internal, err := FromExternalAll(original.Messages)
	require.NoError(t, err)

	back, err := ToExternal(internal)
	require.NoError(t, err)
	require.Len(t, back.Messages, len(original.Messages))
	for i := range original.Messages {
		assert.Equal(t, original.Messages[i].Role, back.Messages[i].Role)
		assert.Equal(t, original.Messages[i].Content, back.Messages[i].Content)
	}
}

func TestFromExternalParsesAttachmentsAndToolCalls(t *testing.T) {
	msg := Message{
		Role:    "assistant",
		Content: "see [attachment:ref-9]",
		ToolCalls: []ToolCall{
			{ID: "fc-2", Name: "plan", Arguments: `{"steps":2}`},
		},
	}

	c, err := FromExternal(msg)
	require.NoError(t, err)
	assert.Equal(t, "assistant", c.Role)
	require.Len(t, c.Parts, 3)

	file, ok := c.Parts[1].(core.FilePart)
	require.True(t, ok)
	assert.Equal(t, "ref-9", file.URI)

	calls := c.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "plan", calls[0].Name)
}

func TestUnknownFieldsPassThroughOpaquely(t *testing.T) {
	raw := []byte(`{"role":"user","content":"hi","x_vendor_hint":{"cache":true},"seq":7}`)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "user", msg.Role)
	require.Contains(t, msg.Extra, "x_vendor_hint")
	require.Contains(t, msg.Extra, "seq")

	out, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.JSONEq(t, `{"cache":true}`, string(decoded["x_vendor_hint"]))
	assert.JSONEq(t, `7`, string(decoded["seq"]))
}

func TestDeltaUnknownFieldsPassThroughOpaquely(t *testing.T) {
	raw := []byte(`{"role":"assistant","content":"Hel","x_chunk_index":3}`)

	var d Delta
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.Equal(t, "assistant", d.Role)
	assert.Equal(t, "Hel", d.Content)
	require.Contains(t, d.Extra, "x_chunk_index")

	out, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.JSONEq(t, `3`, string(decoded["x_chunk_index"]))
	assert.NotContains(t, decoded, "done", "zero fields stay omitted")
}

func TestAccumulatorConcatenatesSameRoleChunks(t *testing.T) {
	acc := NewAccumulator()

	var finalized []core.Content
	finalized = append(finalized, acc.Feed(Delta{Role: "assistant", Content: "Hel"})...)
	finalized = append(finalized, acc.Feed(Delta{Content: "lo wo"})...)
	finalized = append(finalized, acc.Feed(Delta{Content: "rld", Done: true})...)

	require.Len(t, finalized, 1, "three same-role chunks yield exactly one message")
	assert.Equal(t, "assistant", finalized[0].Role)
	assert.Equal(t, "Hello world", finalized[0].Text())
}

func TestAccumulatorFinalizesOnRoleChange(t *testing.T) {
	acc := NewAccumulator()

	out := acc.Feed(Delta{Role: "assistant", Content: "thinking..."})
	assert.Empty(t, out)

	out = acc.Feed(Delta{Role: "tool", Content: "result", Done: true})
	require.Len(t, out, 2)
	assert.Equal(t, "assistant", out[0].Role)
	assert.Equal(t, "thinking...", out[0].Text())
	assert.Equal(t, "tool", out[1].Role)
	assert.Equal(t, "result", out[1].Text())
}

func TestAccumulatorFlush(t *testing.T) {
	acc := NewAccumulator()
	assert.Empty(t, acc.Flush())

	acc.Feed(Delta{Role: "assistant", Content: "partial"})
	out := acc.Flush()
	require.Len(t, out, 1)
	assert.Equal(t, "partial", out[0].Text())
	assert.Empty(t, acc.Flush())
}
