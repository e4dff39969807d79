package llm

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call. System is sent the way each backend
// expects it (a leading system message for OpenAI, a top-level field for
// Anthropic). MaxTokens overrides the provider default when non-zero.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
	// JSON asks the backend to constrain output to a JSON object when it
	// supports that.
	JSON bool
}

// Response represents a complete response from an LLM provider.
type Response struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// UserPrompt wraps a single user turn into a Request.
func UserPrompt(prompt string, maxTokens int) *Request {
	return &Request{
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens: maxTokens,
		JSON:      true,
	}
}
