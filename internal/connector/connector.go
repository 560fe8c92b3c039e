// Package connector bridges external messaging platforms (Telegram, Slack)
// to the desk orchestrator. Each platform implements Connector; the shared
// Router maps platform identities to desk users and runs queries.
package connector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deskd-io/deskd/internal/agent"
	"github.com/deskd-io/deskd/internal/identity"
	"github.com/deskd-io/deskd/internal/memory"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// Connector is the interface for external messaging platforms.
type Connector interface {
	// Name returns the connector type (e.g., "telegram", "slack").
	Name() string
	// Start begins listening for inbound messages. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
	// Send delivers an outbound message to the external platform.
	Send(ctx context.Context, msg OutboundMessage) error
}

// OutboundMessage is a reply sent to an external platform.
type OutboundMessage struct {
	ChatID  string // Platform-specific chat identifier
	Content string // Message text (Markdown)
}

// InboundMessage is a message received from an external platform.
type InboundMessage struct {
	Channel  string // Connector name (e.g., "telegram")
	SenderID string // Platform-specific sender identifier
	ChatID   string // Platform-specific chat identifier
	Content  string // Message text
}

// InboundHandler processes messages received from external platforms and
// returns the reply text.
type InboundHandler func(ctx context.Context, msg InboundMessage) (string, error)

// ChatService is the orchestrator surface the router needs.
type ChatService interface {
	Process(ctx context.Context, caller protocol.Caller, query string, history []protocol.ChatMessage) (*agent.Result, error)
}

// Router turns inbound platform messages into desk queries. Platform
// identities must be explicitly mapped to desk user ids; unmapped senders
// are refused, because every tool call needs a real caller.
type Router struct {
	Chat     ChatService
	Identity identity.Resolver
	Memory   memory.Store
	Users    map[string]string // platform sender id → desk user id
	Logger   *slog.Logger
}

// Handle processes one inbound message and returns the reply text.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) (string, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	deskUser, ok := r.Users[msg.SenderID]
	if !ok {
		logger.Warn("unmapped sender", "channel", msg.Channel, "sender", msg.SenderID)
		return "", fmt.Errorf("connector: sender %s not mapped to a desk user", msg.SenderID)
	}

	caller, err := r.Identity.Resolve(deskUser)
	if err != nil {
		return "", fmt.Errorf("connector: resolve %s: %w", deskUser, err)
	}

	// Sessions are scoped per channel and chat so the same user talking
	// on two platforms keeps separate threads.
	sessionID := msg.Channel + ":" + msg.ChatID
	history, err := r.Memory.History(ctx, sessionID)
	if err != nil {
		logger.Warn("history unavailable", "session", sessionID, "error", err)
	}

	result, err := r.Chat.Process(ctx, caller, msg.Content, history)
	if err != nil {
		return "", fmt.Errorf("connector: process: %w", err)
	}

	if err := r.Memory.Append(ctx, sessionID,
		protocol.ChatMessage{Role: "user", Content: msg.Content},
		protocol.ChatMessage{Role: "assistant", Content: result.Response},
	); err != nil {
		logger.Warn("history not saved", "session", sessionID, "error", err)
	}
	return result.Response, nil
}

// ClearSession forgets a chat's history, for /new-style commands.
func (r *Router) ClearSession(ctx context.Context, channel, chatID string) error {
	return r.Memory.Clear(ctx, channel+":"+chatID)
}
