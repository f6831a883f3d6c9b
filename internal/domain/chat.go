package domain

import "errors"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the relay,
// the wizard clients and the LLM integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IsConversational reports whether the role may appear in a client-supplied history.
func (m ChatMessage) IsConversational() bool {
	return m.Role == RoleUser || m.Role == RoleAssistant
}

// CompletionRequest is a single chat-completion call to the upstream model.
type CompletionRequest struct {
	Model       string
	Temperature float64
	Messages    []ChatMessage
}

// ErrEmptyCompletion is wrapped by LLM integrations when the service returned
// no completion at all.
var ErrEmptyCompletion = errors.New("empty completion")
