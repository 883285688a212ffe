package streamhost

// Role labels one conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one stored conversation turn, with any tool activity attached.
type Message struct {
	Role        Role
	Content     string
	tokenCount  int
	ToolCalls   []ToolCall
	ToolResults []ExecutedTool
}

// ConversationManager stores history with a rough token budget. The oldest
// non-system messages are trimmed once the estimated total exceeds the
// budget; the system message is pinned at the front. Token counts are a ~4
// chars/token estimate, not a real tokenizer.
//
// Not safe for concurrent use; the host owns it.
type ConversationManager struct {
	messages  []Message
	maxTokens int
	curTokens int
}

// NewConversationManager creates a manager with the given context token
// budget. Values <= 0 disable trimming.
func NewConversationManager(maxContextTokens int) *ConversationManager {
	return &ConversationManager{maxTokens: maxContextTokens}
}

// AddUserMessage appends a user turn.
func (m *ConversationManager) AddUserMessage(content string) {
	m.add(Message{Role: RoleUser, Content: content})
}

// AddAssistantMessage appends a plain assistant turn.
func (m *ConversationManager) AddAssistantMessage(content string) {
	m.add(Message{Role: RoleAssistant, Content: content})
}

// AddAssistantTurn appends an assistant turn together with the tool calls it
// made and their results.
func (m *ConversationManager) AddAssistantTurn(content string, calls []ToolCall, results []ExecutedTool) {
	m.add(Message{Role: RoleAssistant, Content: content, ToolCalls: calls, ToolResults: results})
}

// SetSystemMessage installs (or replaces) the pinned system message.
func (m *ConversationManager) SetSystemMessage(content string) {
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.Role != RoleSystem {
			kept = append(kept, msg)
		}
	}
	m.messages = append([]Message{{
		Role:       RoleSystem,
		Content:    content,
		tokenCount: estimateTokens(content),
	}}, kept...)
	m.recalculate()
}

func (m *ConversationManager) add(msg Message) {
	msg.tokenCount = estimateTokens(msg.Content)
	m.messages = append(m.messages, msg)
	m.curTokens += msg.tokenCount
	m.trimToFit()
}

func (m *ConversationManager) trimToFit() {
	if m.maxTokens <= 0 {
		return
	}
	for m.curTokens > m.maxTokens && len(m.messages) > 1 {
		idx := -1
		for i, msg := range m.messages {
			if msg.Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		m.curTokens -= m.messages[idx].tokenCount
		m.messages = append(m.messages[:idx], m.messages[idx+1:]...)
	}
}

func (m *ConversationManager) recalculate() {
	m.curTokens = 0
	for _, msg := range m.messages {
		m.curTokens += msg.tokenCount
	}
}

// History returns user and assistant messages in order; the system message is
// assembled into prompts separately.
func (m *ConversationManager) History() []Message {
	out := make([]Message, 0, len(m.messages))
	for _, msg := range m.messages {
		if msg.Role != RoleSystem {
			out = append(out, msg)
		}
	}
	return out
}

// ToolHistory returns every (calls, results) pair recorded on assistant turns.
func (m *ConversationManager) ToolHistory() []([]ExecutedTool) {
	var out []([]ExecutedTool)
	for _, msg := range m.messages {
		if len(msg.ToolResults) > 0 {
			out = append(out, msg.ToolResults)
		}
	}
	return out
}

// Clear drops everything except the pinned system message.
func (m *ConversationManager) Clear() {
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.Role == RoleSystem {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	m.recalculate()
}

// EstimatedTokens reports the current estimated token total.
func (m *ConversationManager) EstimatedTokens() int { return m.curTokens }

func estimateTokens(content string) int {
	// ~4 characters per token on average.
	return len(content) / 4
}
