package provider

import (
	"context"

	"github.com/deskd-io/deskd/pkg/protocol"
)

// Provider is the abstraction over LLM chat-completion APIs. The agent's
// LLM-backed stages differ only in their prompt and output parser, never in
// how they invoke the provider.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}
