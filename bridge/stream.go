package bridge

import (
	"encoding/json"

	"github.com/hupe1980/agentnet/core"
)

// Delta is one streaming chunk of the external schema. Role is carried on the
// first chunk of a message (or on a role change); Content fragments
// accumulate until Done or a role change finalizes the message. Like Message,
// unrecognized fields survive round-trips through Extra.
type Delta struct {
	Role    string
	Content string
	Done    bool
	Extra   map[string]json.RawMessage
}

// knownDeltaFields are owned by the typed fields above; everything else lands
// in Extra.
var knownDeltaFields = map[string]struct{}{
	"role": {}, "content": {}, "done": {},
}

// MarshalJSON emits the typed fields plus any opaque passthrough fields.
func (d Delta) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+3)
	for k, v := range d.Extra {
		if _, known := knownDeltaFields[k]; known {
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

	if d.Role != "" {
		if err := put("role", d.Role); err != nil {
			return nil, err
		}
	}
	if d.Content != "" {
		if err := put("content", d.Content); err != nil {
			return nil, err
		}
	}
	if d.Done {
		if err := put("done", d.Done); err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}

// UnmarshalJSON fills the typed fields and retains unrecognized fields in
// Extra for forward compatibility.
func (d *Delta) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["role"]; ok {
		if err := json.Unmarshal(v, &d.Role); err != nil {
			return err
		}
	}
	if v, ok := raw["content"]; ok {
		if err := json.Unmarshal(v, &d.Content); err != nil {
			return err
		}
	}
	if v, ok := raw["done"]; ok {
		if err := json.Unmarshal(v, &d.Done); err != nil {
			return err
		}
	}

	for k, v := range raw {
		if _, known := knownDeltaFields[k]; known {
			continue
		}
		if d.Extra == nil {
			d.Extra = map[string]json.RawMessage{}
		}
		d.Extra[k] = v
	}

	return nil
}

// Accumulator folds streaming external deltas into internal messages using a
// concatenate-then-finalize discipline: fragments sharing a role accumulate
// into the most recent in-progress message; a role change or Done finalizes
// it and starts a new one.
type Accumulator struct {
	role string
	buf  string
	open bool
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator { return &Accumulator{} }

// Feed consumes one delta and returns any internal messages finalized by it.
// Most deltas return nothing; the final chunk (or a role switch) yields the
// completed message.
func (a *Accumulator) Feed(d Delta) []core.Content {
	var out []core.Content

	if d.Role != "" && a.open && d.Role != a.role {
		out = append(out, a.finalize())
	}
	if d.Role != "" {
		a.role = d.Role
	}

	a.buf += d.Content
	a.open = true

	if d.Done {
		out = append(out, a.finalize())
	}

	return out
}

// Flush finalizes and returns any in-progress message. Safe to call on an
// empty accumulator.
func (a *Accumulator) Flush() []core.Content {
	if !a.open {
		return nil
	}
	return []core.Content{a.finalize()}
}

func (a *Accumulator) finalize() core.Content {
	c := core.Content{Role: a.role, Parts: parseText(a.buf)}
	a.buf = ""
	a.open = false
	return c
}
