// Package llm defines the language-model client contract used by the
// workflow stages, a Claude CLI implementation, and a mock for tests.
package llm

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	// SystemPrompt sets the model's instructions.
	SystemPrompt string

	// Messages is the conversation so far; the last message is the
	// prompt to answer.
	Messages []Message

	// Model overrides the client's default model when non-empty.
	Model string

	// Temperature controls sampling. Zero is deterministic; clients
	// that cannot control sampling ignore it.
	Temperature float64

	// MaxTokens bounds the response length when > 0.
	MaxTokens int
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	Cost         float64 `json:"cost,omitempty"`
}

// CompletionResponse is the result of one completion call.
type CompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Client is the capability the workflow stages consume. Implementations
// must be safe for concurrent use; threads complete in parallel.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// UserMessage builds a single-message conversation, the common case for
// stage prompts.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}
