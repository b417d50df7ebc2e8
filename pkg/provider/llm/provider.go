// Package llm defines the Provider interface for text-generation backends.
//
// The pipeline speaks to the LLM once per utterance: it passes the speaker's
// transcript together with the bounded conversation history and expects one
// complete reply. Tool calling and streaming are deliberately out of scope;
// the reply is spoken aloud, so short complete text is all that is needed.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"fmt"
)

// Role identifies who authored a conversation message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in an LLM conversation.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser], or [RoleAssistant].
	Role string

	// Content is the text content of the message.
	Content string
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Generate produces a reply to the last user message in messages.
	// messages carries the system prompt (if any), the bounded history in
	// chronological order, and the current transcript as the final entry.
	Generate(ctx context.Context, messages []Message) (string, error)
}

// GenerationError wraps a backend failure with the provider's name.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
