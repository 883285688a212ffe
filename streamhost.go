package streamhost

import (
	"context"
	"encoding/json"
)

// TokenClass identifies how a classified span of model output should be handled.
type TokenClass int

const (
	// ClassNarrative is normal text intended for direct display.
	ClassNarrative TokenClass = iota
	// ClassToolCall is a span holding a complete tool-call JSON object; hidden from display by default.
	ClassToolCall
	// ClassPending is text still too ambiguous to classify; buffered, not shown yet.
	ClassPending
)

func (c TokenClass) String() string {
	switch c {
	case ClassNarrative:
		return "narrative"
	case ClassToolCall:
		return "tool_call"
	case ClassPending:
		return "pending"
	}
	return "unknown"
}

// Token is one classified span of model output.
type Token struct {
	Class TokenClass
	Text  string
}

// ToolCall is a structured request embedded in model output: a tool name plus its JSON parameters.
type ToolCall struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

// ExecutedTool records one completed backend invocation. A failed call embeds
// {"error": message} in Result instead of surfacing a Go error; the round continues.
// Immutable after creation.
type ExecutedTool struct {
	ToolName        string          `json:"tool_name"`
	Parameters      json.RawMessage `json:"parameters"`
	Result          json.RawMessage `json:"result"`
	ExecutionTimeMS int64           `json:"execution_time_ms"`
}

// Failed reports whether the invocation recorded an error result.
func (e ExecutedTool) Failed() bool {
	var probe struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(e.Result, &probe); err != nil {
		return false
	}
	return probe.Error != nil
}

// ToolInfo describes one tool in the backend catalog.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"json_schema"`
}

// GenerateRequest is a single-shot generation request.
type GenerateRequest struct {
	Prompt        string
	Temperature   float64
	MaxTokens     int // 0 means provider default
	StopSequences []string
}

// GenerateResponse is the generator's complete answer for one request.
type GenerateResponse struct {
	Text         string
	FinishReason string
	Usage        *TokenUsage // nil when the provider does not report usage
}

// TokenUsage reports token accounting for one generation, when available.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator is the single capability the host needs from an LLM provider:
// synchronous, non-streaming text generation. Streaming fragment sources are
// consumed separately by Pipeline and are plain channels, not part of this interface.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// ToolBackend is a catalog of named tools invokable by name plus JSON parameters.
// Implementations do their own process launching and argument sanitization;
// the host only serializes access (one in-flight request at a time).
type ToolBackend interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error)
}
