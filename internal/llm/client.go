// Package llm wraps the hosted conversational model behind a minimal
// send-context-get-reply contract.
package llm

import "context"

// Message roles, mirroring the chat-completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the ordered conversation context.
type Message struct {
	Role    string
	Content string
}

// Response carries the model reply plus token accounting for tracing.
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client generates a reply given the ordered prior turns plus the new
// message (the last entry of messages).
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
