package streamhost

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolFormat selects how tool usage is described to a model family.
type ToolFormat int

const (
	// FormatJSONOnly instructs the model to emit {"tool": ..., "params": ...}
	// objects inline. Works everywhere; the only format the extractor parses.
	FormatJSONOnly ToolFormat = iota
	// FormatNativeTools assumes the model was tuned for tool use and needs a
	// lighter reminder. Extraction still parses inline JSON objects.
	FormatNativeTools
)

// StreamingToolPrompt asks the model to emit tool calls as whole objects on
// their own lines so the streaming classifier sees clean boundaries.
const StreamingToolPrompt = `When you need to use a tool:
1. Output the tool call as a complete JSON object on its own line
2. Do not include any explanation before or mixed with the JSON
3. After the tool executes, you can explain what you did

Good example:
{"tool": "list_files", "params": {"path": "."}}

Bad example:
Let me list the files {"tool": "list_files", "params": {"path": "."}} for you.

This ensures clean streaming to the user.`

// PromptTemplate assembles prompts for one model family: system prompt, tool
// catalog, usage instructions, conversation history, and round continuations.
type PromptTemplate struct {
	systemPrompt string
	format       ToolFormat
}

// NewPromptTemplate picks a template by model name. Known tool-tuned families
// get the native format; everything else gets explicit JSON instructions.
func NewPromptTemplate(modelName string) *PromptTemplate {
	switch {
	case strings.HasPrefix(modelName, "llama3.1"):
		return &PromptTemplate{systemPrompt: llamaSystemPrompt, format: FormatNativeTools}
	case strings.HasPrefix(modelName, "mistral"):
		return &PromptTemplate{systemPrompt: mistralSystemPrompt, format: FormatJSONOnly}
	default:
		return &PromptTemplate{systemPrompt: genericSystemPrompt, format: FormatJSONOnly}
	}
}

// Format returns the template's tool format.
func (t *PromptTemplate) Format() ToolFormat { return t.format }

// FormatWithTools builds the full prompt for a turn: system prompt, tool
// catalog with schemas, usage instructions, prior history, and the user
// message.
func (t *PromptTemplate) FormatWithTools(tools []ToolInfo, history []Message, userMessage string) string {
	var sb strings.Builder
	sb.WriteString(t.systemPrompt)

	if len(tools) > 0 {
		sb.WriteString("\n\nAvailable tools:\n")
		for _, tool := range tools {
			schema, _ := json.Marshal(tool.InputSchema)
			fmt.Fprintf(&sb, "- %s: %s\n  Parameters: %s\n", tool.Name, tool.Description, schema)
		}
		sb.WriteString(t.toolUsageInstructions())
	}

	if len(history) > 0 {
		sb.WriteString("\n\nConversation history:\n")
		for _, msg := range history {
			fmt.Fprintf(&sb, "%s: %s\n", roleLabel(msg.Role), msg.Content)
		}
	}

	fmt.Fprintf(&sb, "\nUser: %s\nAssistant: ", userMessage)
	return sb.String()
}

// ContinuationPrompt builds the re-prompt after a round of tool execution:
// the catalog, the assistant's current text, the entire cumulative tool-result
// history, and the original user message.
func (t *PromptTemplate) ContinuationPrompt(tools []ToolInfo, currentText string, cumulative []ExecutedTool, userMessage string) string {
	var sb strings.Builder
	sb.WriteString(t.systemPrompt)

	if len(tools) > 0 {
		sb.WriteString("\n\nAvailable tools:\n")
		for _, tool := range tools {
			fmt.Fprintf(&sb, "- %s: %s\n", tool.Name, tool.Description)
		}
	}

	sb.WriteString("\n\nYour previous response:\n")
	sb.WriteString(currentText)

	sb.WriteString("\n\nTool results so far:\n")
	for _, exec := range cumulative {
		fmt.Fprintf(&sb, "Tool '%s' (%dms): %s\n", exec.ToolName, exec.ExecutionTimeMS, exec.Result)
	}

	fmt.Fprintf(&sb, "\nOriginal request: %s\n", userMessage)
	sb.WriteString("\nContinue your answer using the tool results above. " +
		"Use another tool only if you still need more information; otherwise give the final answer.\nAssistant: ")
	return sb.String()
}

// InlineResults appends tool results directly to the assistant's text.
// Used when no continuation round follows, so the caller still sees what
// the tools returned.
func (t *PromptTemplate) InlineResults(currentText string, executed []ExecutedTool) string {
	if len(executed) == 0 {
		return currentText
	}
	var sb strings.Builder
	sb.WriteString(currentText)
	sb.WriteString("\n\n")
	for _, exec := range executed {
		if exec.Failed() {
			fmt.Fprintf(&sb, "Tool '%s' failed: %s\n", exec.ToolName, exec.Result)
			continue
		}
		fmt.Fprintf(&sb, "Tool '%s' result: %s\n", exec.ToolName, exec.Result)
	}
	return sb.String()
}

// EnhanceSystemPrompt appends the streaming-friendly tool block and catalog
// to an application's own system prompt, preserving the original text.
func (t *PromptTemplate) EnhanceSystemPrompt(original string, tools []ToolInfo) string {
	if len(tools) == 0 {
		return original
	}
	var sb strings.Builder
	sb.WriteString(original)
	sb.WriteString("\n\n## Available Tools\n\n")
	sb.WriteString(StreamingToolPrompt)
	sb.WriteString("\n\nYour available tools are:\n")
	for _, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		fmt.Fprintf(&sb, "- `%s`: %s\n  Parameters: %s\n", tool.Name, tool.Description, schema)
	}
	return sb.String()
}

func (t *PromptTemplate) toolUsageInstructions() string {
	switch t.format {
	case FormatNativeTools:
		return "\nYou have access to tools. Use them when needed to help answer the user's request.\n"
	default:
		return "\nTo use a tool, output EXACTLY this JSON format on its own line:\n" +
			`{"tool": "tool_name", "params": {"param1": "value1"}}` + "\n\n" +
			"Important:\n" +
			"- Output the JSON on its own line\n" +
			"- Ensure the JSON is valid\n" +
			"- Use the exact parameter names from the tool schema\n" +
			"- You can use multiple tools in one response\n"
	}
}

func roleLabel(r Role) string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}

const (
	genericSystemPrompt = "You are a helpful AI assistant with access to tools. " +
		"Use the available tools to help answer user questions and complete tasks. " +
		"Always validate your tool parameters match the schema before calling."

	llamaSystemPrompt = "You are a helpful AI assistant. You have access to a set of tools to help answer questions and complete tasks. " +
		"When you need to use a tool, make sure to validate the parameters match the required schema."

	mistralSystemPrompt = "You are a helpful AI assistant with tool access. When using tools, output valid JSON following the specified format. " +
		"Think step by step and use tools when they would help provide better answers."
)
