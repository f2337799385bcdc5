package llm

import "context"

// Backend is an inference service able to hold stateful conversations.
// Implementations handle protocol-specific details such as request formatting,
// authentication, and response parsing.
type Backend interface {
	// CreateConversation opens a conversation for modelID seeded with history.
	CreateConversation(ctx context.Context, modelID string, history []Turn) (Conversation, error)

	// GenerateOnce runs a single stateless prompt and returns the reply text.
	GenerateOnce(ctx context.Context, modelID, prompt string) (string, error)
}

// Conversation is a live, stateful chat with one model.
type Conversation interface {
	// SendStream sends a user turn and returns a channel of incremental deltas.
	// The channel is closed when the backend signals completion. Each call
	// yields a fresh stream; a finished stream cannot be restarted.
	SendStream(ctx context.Context, fragments []Fragment) (<-chan Delta, error)
}

// Config holds common configuration for backends.
type Config struct {
	BaseURL string
	APIKey  string
}
