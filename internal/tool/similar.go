package tool

import (
	"context"
	"fmt"

	"github.com/deskd-io/deskd/internal/embed"
	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// Fixed similarity search parameters. These are explicit and never varied
// per call.
const (
	similarityThreshold = 0.5
	similarityLimit     = 8
)

// FindSimilarMessagesTool vectorizes the query text and ranks stored ticket
// messages by cosine similarity.
type FindSimilarMessagesTool struct {
	Store    store.Store
	Embedder embed.Embedder
}

func (t *FindSimilarMessagesTool) Name() string { return NameFindSimilarMessages }
func (t *FindSimilarMessagesTool) Description() string {
	return "Find ticket messages semantically similar to a text"
}

func (t *FindSimilarMessagesTool) Parameters() map[string]any {
	return schema(map[string]any{
		"text": prop("string", "the text to match against stored ticket messages"),
	}, "text")
}

func (t *FindSimilarMessagesTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	caller, _ := CallerFromContext(ctx)

	text := getString(input, "text")
	if text == "" {
		return nil, &ValidationError{Tool: NameFindSimilarMessages, MissingFields: []string{"text"}}
	}
	if t.Embedder == nil {
		return nil, fmt.Errorf("%s: no embedding service configured", NameFindSimilarMessages)
	}

	vec, err := t.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameFindSimilarMessages, err)
	}

	scored, err := t.Store.SimilarMessages(vec, similarityThreshold, similarityLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameFindSimilarMessages, err)
	}

	// Customers only see matches from their own tickets.
	if caller.Role == protocol.RoleCustomer {
		var own []store.ScoredMessage
		for _, sm := range scored {
			tk, err := t.Store.GetTicket(sm.Message.TicketID)
			if err != nil {
				continue
			}
			if tk.CustomerID == caller.UserID {
				own = append(own, sm)
			}
		}
		scored = own
	}

	if scored == nil {
		scored = []store.ScoredMessage{}
	}
	return scored, nil
}
