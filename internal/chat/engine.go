// Package chat implements the conversation engine and its HTTP surface.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ponraviraj/gemini-chat/internal/llm"
	"github.com/ponraviraj/gemini-chat/internal/models"
)

// ErrModelUnavailable signals that the hosted-model call failed. The
// attempted turn is never persisted and the context buffer is unchanged.
var ErrModelUnavailable = errors.New("model unavailable")

// contextWindow caps how many prior turns are forwarded to the model.
// Stored history is unbounded; only the upstream context is trimmed.
const contextWindow = 20

// Fixed phrase list for the identity short-circuit. Matching is
// case-insensitive containment, no model call involved.
var namePhrases = []string{"your name", "who am i", "what is my name"}

// Reply is the outcome of one Send.
type Reply struct {
	Content   string
	FromModel bool
	Usage     llm.Response
}

// Engine holds one session's conversation context. The buffer is a
// derived cache of the persisted transcript, seeded at login and never
// the source of truth. Send computes a reply without mutating the
// buffer; the caller commits the turn only after it has been persisted,
// which keeps buffer and transcript consistent with the last fully
// completed send. The mutex guards the buffer against concurrent sends
// on the same session (two tabs, a double-click).
type Engine struct {
	username string
	client   llm.Client

	mu     sync.Mutex
	buffer []llm.Message
}

// NewEngine seeds the context buffer from the persisted transcript,
// oldest first.
func NewEngine(username string, client llm.Client, history []models.Turn) *Engine {
	buffer := make([]llm.Message, 0, len(history)*2)
	for _, t := range history {
		buffer = append(buffer,
			llm.Message{Role: llm.RoleUser, Content: t.UserMessage},
			llm.Message{Role: llm.RoleAssistant, Content: t.BotReply},
		)
	}
	return &Engine{username: username, client: client, buffer: buffer}
}

// Send produces a reply for message. Identity questions are answered
// deterministically without touching the model.
func (e *Engine) Send(ctx context.Context, message string) (Reply, error) {
	if isNameQuery(message) {
		return Reply{Content: fmt.Sprintf("Your name is %s.", e.username)}, nil
	}

	resp, err := e.client.Generate(ctx, e.contextFor(message))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return Reply{Content: resp.Content, FromModel: true, Usage: resp}, nil
}

// Commit appends a completed turn to the context buffer.
func (e *Engine) Commit(message, reply string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = append(e.buffer,
		llm.Message{Role: llm.RoleUser, Content: message},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
}

// contextFor builds the upstream message list: the most recent turns up
// to the window cap, then the new user message. The returned slice is a
// copy, so the lock is not held across the model call.
func (e *Engine) contextFor(message string) []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	window := e.buffer
	if limit := contextWindow * 2; len(window) > limit {
		window = window[len(window)-limit:]
	}
	msgs := make([]llm.Message, 0, len(window)+1)
	msgs = append(msgs, window...)
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
}

func isNameQuery(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range namePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
