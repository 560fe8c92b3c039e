package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/deskd-io/deskd/internal/provider"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// Responder writes the natural-language reply from the accumulated request
// state. It runs on every request — success, partial failure, or total
// failure — so the user always gets prose, never raw errors or JSON.
type Responder struct {
	provider provider.Provider
	logger   *slog.Logger
}

func NewResponder(p provider.Provider, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{provider: p, logger: logger}
}

// fallbackResponse covers the case where the responder's own model call
// fails. It is the only canned text in the pipeline.
const fallbackResponse = "Sorry, I ran into a problem handling that request. Please try again."

// Respond generates the final reply. It never returns an error: if the
// model call fails, the user gets a generic apology and the failure is
// logged.
func (r *Responder) Respond(ctx context.Context, state *State) string {
	msgs := make([]protocol.ChatMessage, 0, len(state.Context.ConversationHistory)+2)
	msgs = append(msgs, protocol.ChatMessage{Role: "system", Content: buildResponderPrompt(state)})
	msgs = append(msgs, promptMessages(state.Context.ConversationHistory, state.Query)...)

	resp, err := r.provider.Chat(ctx, protocol.ChatRequest{Messages: msgs})
	if err != nil {
		r.logger.Error("response generation failed", "provider", r.provider.Name(), "error", err)
		return fallbackResponse
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return fallbackResponse
	}
	return reply
}
