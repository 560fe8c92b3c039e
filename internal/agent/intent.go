package agent

import (
	"context"
	"log/slog"

	"github.com/deskd-io/deskd/internal/provider"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// Analyzer classifies a query into an intent with extracted parameters.
type Analyzer struct {
	provider provider.Provider
	logger   *slog.Logger
}

func NewAnalyzer(p provider.Provider, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{provider: p, logger: logger}
}

// Analyze runs one model call and strictly decodes the result. The
// conversation history rides along so follow-ups ("yes", "the first one")
// resolve against the previous exchange.
func (a *Analyzer) Analyze(ctx context.Context, query string, history []protocol.ChatMessage) (*IntentAnalysis, error) {
	msgs := make([]protocol.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, protocol.ChatMessage{Role: "system", Content: intentSystemPrompt})
	msgs = append(msgs, promptMessages(history, query)...)

	resp, err := a.provider.Chat(ctx, protocol.ChatRequest{Messages: msgs, Temperature: 0})
	if err != nil {
		return nil, &ParseError{Stage: "intent", Err: err}
	}

	analysis, err := decodeIntentAnalysis(resp.Content)
	if err != nil {
		a.logger.Warn("intent analysis unparseable", "provider", a.provider.Name(), "error", err)
		return nil, &ParseError{Stage: "intent", Err: err}
	}

	a.logger.Debug("intent analyzed",
		"intent", analysis.Intent,
		"explanation", analysis.Explanation,
	)
	return analysis, nil
}
