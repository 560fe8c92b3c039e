package agent

import (
	"context"
	"log/slog"

	"github.com/deskd-io/deskd/internal/provider"
	"github.com/deskd-io/deskd/internal/tool"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// Planner turns an intent analysis into an ordered list of tool calls.
// The catalog it advertises to the model comes straight from the registry,
// so a plan can only name real tools or fail upfront validation.
type Planner struct {
	provider provider.Provider
	registry *tool.Registry
	logger   *slog.Logger
}

func NewPlanner(p provider.Provider, reg *tool.Registry, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{provider: p, registry: reg, logger: logger}
}

// Plan produces the step list for a query. An empty plan is a valid
// outcome and means the responder should ask for what is missing rather
// than guess.
func (p *Planner) Plan(ctx context.Context, query string, ambient *Ambient, analysis *IntentAnalysis) ([]Action, error) {
	system := buildPlannerPrompt(p.registry.Specs(), ambient, analysis)

	msgs := []protocol.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: query},
	}
	resp, err := p.provider.Chat(ctx, protocol.ChatRequest{Messages: msgs, Temperature: 0})
	if err != nil {
		return nil, &ParseError{Stage: "plan", Err: err}
	}

	plan, err := decodePlan(resp.Content)
	if err != nil {
		p.logger.Warn("plan unparseable", "provider", p.provider.Name(), "error", err)
		return nil, &ParseError{Stage: "plan", Err: err}
	}

	// Every step must name a registered tool before anything executes.
	// One bad name fails the whole request; partial plans never run.
	for _, step := range plan {
		if !p.registry.Has(step.Tool) {
			return nil, &tool.UnknownToolError{Name: step.Tool}
		}
	}

	p.logger.Debug("plan built", "steps", len(plan))
	return plan, nil
}
