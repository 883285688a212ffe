package streamhost

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// thinkPattern matches a chain-of-thought block emitted by reasoning models.
var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes the first <think>...</think> block from text and trims
// surrounding whitespace.
func StripThink(text string) string {
	loc := thinkPattern.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
}

// ExtractToolCalls finds tool calls in a complete response: non-overlapping,
// non-nested balanced {...} objects containing a "tool" key. Balanced-brace
// scanning (the same scanner the classifier uses) is used instead of a flat
// regex, so back-to-back calls whose params contain braces extract correctly.
//
// A candidate that carries a "tool" key but does not parse as {tool, params}
// is an error even after a repair pass: the caller's attempt should abort and
// retry rather than silently execute a subset.
func ExtractToolCalls(text string) ([]ToolCall, error) {
	var calls []ToolCall
	for i := 0; i < len(text); {
		off := strings.IndexByte(text[i:], '{')
		if off < 0 {
			break
		}
		start := i + off
		end, ok := balancedObjectEnd(text, start)
		if !ok {
			// Unterminated object; nothing after it can be balanced either.
			break
		}
		candidate := text[start:end]
		if !gjson.Get(candidate, "tool").Exists() {
			i = end
			continue
		}
		call, err := parseToolCallLoose(candidate)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToolCall, err)
		}
		calls = append(calls, call)
		i = end
	}
	return calls, nil
}

// RemoveToolCalls returns text with every tool-call object cut out, leaving
// the surrounding narrative. Spans are located the same way ExtractToolCalls
// locates them; unparseable candidates are left in place.
func RemoveToolCalls(text string) string {
	var b strings.Builder
	last := 0
	for i := 0; i < len(text); {
		off := strings.IndexByte(text[i:], '{')
		if off < 0 {
			break
		}
		start := i + off
		end, ok := balancedObjectEnd(text, start)
		if !ok {
			break
		}
		candidate := text[start:end]
		if gjson.Get(candidate, "tool").Exists() {
			if _, err := parseToolCallLoose(candidate); err == nil {
				b.WriteString(text[last:start])
				last = end
			}
		}
		i = end
	}
	b.WriteString(text[last:])
	return strings.TrimSpace(b.String())
}

// parseToolCallLoose parses candidate as {tool, params}, running a JSON repair
// pass when strict parsing fails on a syntax error. Models frequently emit
// almost-valid JSON (trailing commas, single quotes); repairing is cheaper
// than burning a retry attempt.
func parseToolCallLoose(candidate string) (ToolCall, error) {
	var call ToolCall
	err := json.Unmarshal([]byte(candidate), &call)
	if err != nil {
		if _, ok := err.(*json.SyntaxError); !ok {
			return ToolCall{}, err
		}
		fixed, repErr := jsonrepair.JSONRepair(candidate)
		if repErr != nil {
			return ToolCall{}, err
		}
		if err = json.Unmarshal([]byte(fixed), &call); err != nil {
			return ToolCall{}, err
		}
	}
	if call.Tool == "" {
		return ToolCall{}, fmt.Errorf(`"tool" must be a non-empty string`)
	}
	if call.Params == nil {
		return ToolCall{}, fmt.Errorf(`"params" is required`)
	}
	return call, nil
}
