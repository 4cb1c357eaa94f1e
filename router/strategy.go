package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/model"
)

// FinishRoute is the reserved selection that ends the conversation with a
// direct answer instead of another delegation.
const FinishRoute = "finish"

// RouteInfo describes one selectable route, surfaced to selection strategies.
type RouteInfo struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// RoutingDecision records one selection outcome. Rationale is best-effort
// free text and is never parsed further. Arguments carries the raw JSON of a
// structured call, empty for classification.
type RoutingDecision struct {
	Route     string `json:"route"`
	Rationale string `json:"rationale,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Turn      int    `json:"turn"`
}

// Selection is the outcome of one SELECT_AGENT step: either a routing
// decision or a direct final answer.
type Selection struct {
	Decision *RoutingDecision
	Final    *core.Content
}

// SelectionStrategy picks the next route (or a final answer) from the
// conversation so far. Implementations issue exactly one model call per
// Select.
type SelectionStrategy interface {
	Name() string
	Select(ctx context.Context, routes []RouteInfo, history []core.Content, instructions string) (*Selection, error)
}

// ClassificationStrategy selects by asking the model to name one route from
// the enumerated closed set.
type ClassificationStrategy struct {
	model model.Model
}

// NewClassificationStrategy creates a classification strategy backed by m.
func NewClassificationStrategy(m model.Model) *ClassificationStrategy {
	return &ClassificationStrategy{model: m}
}

// Name returns the strategy identifier.
func (s *ClassificationStrategy) Name() string { return "classification" }

// Select issues one classification call and parses the chosen name plus an
// optional rationale from the reply.
func (s *ClassificationStrategy) Select(
	ctx context.Context,
	routes []RouteInfo,
	history []core.Content,
	instructions string,
) (*Selection, error) {
	req := model.Request{
		Instructions: classificationPrompt(routes, instructions),
		Contents:     history,
	}

	resp, err := model.Final(s.model.Generate(ctx, req))
	if err != nil {
		return nil, err
	}

	choice, rest := splitChoice(resp.Content.Text())
	if strings.EqualFold(choice, FinishRoute) {
		final := core.TextContent("assistant", rest)
		return &Selection{Final: &final}, nil
	}

	return &Selection{Decision: &RoutingDecision{Route: choice, Rationale: rest}}, nil
}

func classificationPrompt(routes []RouteInfo, instructions string) string {
	var b strings.Builder
	if instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}
	b.WriteString("Select the route best suited to handle the next step of the conversation.\n")
	b.WriteString("Available routes:\n")
	for _, r := range routes {
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Description)
	}
	fmt.Fprintf(&b, "- %s: answer the user directly and end the conversation\n", FinishRoute)
	b.WriteString("Reply with exactly one route name on the first line. ")
	b.WriteString("You may add a short rationale, or the final answer after \"finish\", on the following lines.")
	return b.String()
}

// splitChoice separates the first non-empty line (the chosen name, stripped
// of wrapping quotes and trailing punctuation) from the remaining text.
func splitChoice(text string) (choice, rest string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		choice = strings.Trim(line, "\"'`.,:")
		rest = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		return choice, rest
	}
	return "", ""
}

// StructuredCallStrategy selects by exposing every route as a callable
// function and letting the model emit one invocation. A plain-text reply
// without a call is treated as the final answer.
type StructuredCallStrategy struct {
	model model.Model
}

// NewStructuredCallStrategy creates a structured-call strategy backed by m.
func NewStructuredCallStrategy(m model.Model) *StructuredCallStrategy {
	return &StructuredCallStrategy{model: m}
}

// Name returns the strategy identifier.
func (s *StructuredCallStrategy) Name() string { return "structured_call" }

// Select issues one tool-calling model call. The first emitted call becomes
// the routing decision; its raw argument JSON is validated downstream against
// the matched route's schema.
func (s *StructuredCallStrategy) Select(
	ctx context.Context,
	routes []RouteInfo,
	history []core.Content,
	instructions string,
) (*Selection, error) {
	req := model.Request{
		Instructions: instructions,
		Contents:     history,
		Tools:        toolDefinitions(routes),
	}

	resp, err := model.Final(s.model.Generate(ctx, req))
	if err != nil {
		return nil, err
	}

	if calls := resp.Content.FunctionCalls(); len(calls) > 0 {
		return &Selection{Decision: &RoutingDecision{
			Route:     calls[0].Name,
			Arguments: calls[0].Arguments,
		}}, nil
	}

	final := resp.Content
	return &Selection{Final: &final}, nil
}

func toolDefinitions(routes []RouteInfo) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, len(routes))
	for i, r := range routes {
		params := r.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs[i] = model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        r.Name,
				Description: r.Description,
				Parameters:  params,
			},
		}
	}
	return defs
}

// routeInfos projects declared capabilities into sorted route descriptors.
func routeInfos(decls map[string]core.Capability) []RouteInfo {
	infos := make([]RouteInfo, 0, len(decls))
	for name, impl := range decls {
		infos = append(infos, RouteInfo{
			Name:        name,
			Description: impl.Description(),
			Parameters:  impl.Parameters(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// matchRoute resolves a selection output against the candidate names: exact
// match first, then case-insensitive equality, then the unique closest
// case-insensitive prefix match. A tie or a miss yields a
// *core.RoutingAmbiguityError.
func matchRoute(choice string, candidates []string) (string, error) {
	choice = strings.TrimSpace(choice)
	for _, c := range candidates {
		if c == choice {
			return c, nil
		}
	}

	lower := strings.ToLower(choice)
	for _, c := range candidates {
		if strings.ToLower(c) == lower {
			return c, nil
		}
	}

	best, bestLen, ties := "", 0, 0
	if lower != "" {
		for _, c := range candidates {
			cl := strings.ToLower(c)
			n := commonPrefixLen(cl, lower)
			if n == 0 || (n < len(cl) && n < len(lower)) {
				continue // one side must be a full prefix of the other
			}
			switch {
			case n > bestLen:
				best, bestLen, ties = c, n, 1
			case n == bestLen:
				ties++
			}
		}
	}
	if bestLen > 0 && ties == 1 {
		return best, nil
	}

	return "", &core.RoutingAmbiguityError{Choice: choice, Candidates: candidates}
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
