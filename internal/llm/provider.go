// Package llm defines the completion provider contract the interview
// service talks to.
package llm

import "context"

// Message is one role-tagged entry sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chunk is one incremental piece of a streamed reply. Final is set on the
// chunk carrying the provider's finish signal.
type Chunk struct {
	Delta string
	Final bool
}

// Provider completes a conversation. Stream calls onChunk in arrival order
// and aborts as soon as onChunk returns an error.
type Provider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message, onChunk func(Chunk) error) error
}
