package agent

import (
	"slices"

	"github.com/deskd-io/deskd/pkg/protocol"
)

// Intent is the classified purpose of a user query.
type Intent string

const (
	IntentSearch      Intent = "SEARCH"
	IntentDetails     Intent = "DETAILS"
	IntentSimilar     Intent = "SIMILAR"
	IntentSystem      Intent = "SYSTEM"
	IntentGreeting    Intent = "GREETING"
	IntentUserQuery   Intent = "USER_QUERY"
	IntentAdminAction Intent = "ADMIN_ACTION"
)

// Intents lists every valid intent category.
func Intents() []Intent {
	return []Intent{
		IntentSearch, IntentDetails, IntentSimilar, IntentSystem,
		IntentGreeting, IntentUserQuery, IntentAdminAction,
	}
}

// Valid reports whether the intent is a known category.
func (i Intent) Valid() bool {
	return slices.Contains(Intents(), i)
}

// MessageContext disambiguates what "the conversation" refers to when a
// query mentions messages: the chat history, a ticket's thread, or unclear.
// Invariant: when NeedsClarification is true, ClarificationQuestion is
// non-empty and the orchestrator returns it verbatim without planning.
type MessageContext struct {
	Type                  string `json:"type"` // "chat", "ticket", or "unclear"
	NeedsClarification    bool   `json:"needsClarification"`
	ClarificationQuestion string `json:"clarificationQuestion,omitempty"`
}

// ActionRequest describes an administrative action the user asked for.
// Invariant: NeedsClarification is true whenever MissingFields is non-empty,
// and no plan step may depend on a field listed there.
type ActionRequest struct {
	Type                  string         `json:"type"`     // create|update|delete|manage
	Resource              string         `json:"resource"` // organization|user|ticket|settings
	Parameters            map[string]any `json:"parameters,omitempty"`
	MissingFields         []string       `json:"missingFields,omitempty"`
	NeedsClarification    bool           `json:"needsClarification"`
	ClarificationQuestion string         `json:"clarificationQuestion,omitempty"`
}

// TimeRange is an optional date window extracted from the query.
type TimeRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Parameters is the structured parameter block extracted by intent analysis.
type Parameters struct {
	TimeRange      *TimeRange        `json:"timeRange,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"` // priority, status, assignee, customer
	TicketID       string            `json:"ticketId,omitempty"`
	SearchTerms    string            `json:"searchTerms,omitempty"`
	MessageContext *MessageContext   `json:"messageContext,omitempty"`
	Action         *ActionRequest    `json:"action,omitempty"`
}

// IntentAnalysis is the result of the intent-analysis LLM call. Produced
// fresh per request, read-only downstream.
type IntentAnalysis struct {
	Intent      Intent     `json:"intent"`
	Explanation string     `json:"explanation"`
	Parameters  Parameters `json:"parameters"`
}

// Action is a single planned tool invocation.
type Action struct {
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// StepResult pairs a planned step with its execution outcome. Failed steps
// are kept alongside successful ones so the responder can narrate partial
// failure.
type StepResult struct {
	Action Action              `json:"action"`
	Result protocol.ToolResult `json:"result"`
}

// Ambient is the per-request context threaded into tool calls and the
// final response: who is asking, on behalf of which organization, and what
// the system identity is.
type Ambient struct {
	CurrentUser         *protocol.User         `json:"current_user,omitempty"`
	Organization        *protocol.Organization `json:"organization,omitempty"`
	SystemInfo          *protocol.SystemInfo   `json:"system_info,omitempty"`
	Parameters          *Parameters            `json:"parameters,omitempty"`
	ConversationHistory []protocol.ChatMessage `json:"conversation_history,omitempty"`
}

// State is the per-request scratch object. It is created at the start of
// Process, owned exclusively by the orchestrator, and discarded once the
// response is returned — never shared across requests.
type State struct {
	Query        string          `json:"query"`
	Context      Ambient         `json:"context"`
	Analysis     *IntentAnalysis `json:"analysis,omitempty"`
	Plan         []Action        `json:"plan,omitempty"`
	Results      []StepResult    `json:"results,omitempty"`
	Failed       bool            `json:"failed,omitempty"`
	FailureStage string          `json:"failure_stage,omitempty"`
}

// Result is what Process returns to callers.
type Result struct {
	Response string `json:"response"`
	State    *State `json:"state"`
}
