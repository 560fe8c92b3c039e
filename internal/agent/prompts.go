package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deskd-io/deskd/internal/tool"
	"github.com/deskd-io/deskd/pkg/protocol"
)

const intentSystemPrompt = `You are the intent analyzer for Sage, a help-desk assistant.
Classify the user's query into exactly one intent and extract structured parameters.

Intents:
- SEARCH: find or filter tickets ("show open tickets", "urgent tickets from last week")
- DETAILS: inspect one specific ticket ("what's in ticket 42", "show me that ticket")
- SIMILAR: find ticket messages similar to a text or to the conversation
- SYSTEM: questions about the assistant itself ("what can you do", "who are you")
- GREETING: social messages with no task ("hi", "thanks", "good morning")
- USER_QUERY: find or inspect users ("find bob@example.com", "who are the agents")
- ADMIN_ACTION: create, update, or delete tickets, users, or organization settings

Respond with a single JSON object and nothing else:
{
  "intent": "SEARCH",
  "explanation": "one short sentence",
  "parameters": {
    "timeRange": {"start": "...", "end": "..."},
    "filters": {"status": "open", "priority": "high"},
    "ticketId": "...",
    "searchTerms": "...",
    "messageContext": {"type": "chat|ticket|unclear", "needsClarification": false, "clarificationQuestion": ""},
    "action": {"type": "create|update|delete|manage", "resource": "ticket|user|organization|settings", "parameters": {}, "missingFields": [], "needsClarification": false, "clarificationQuestion": ""}
  }
}

Rules:
- Omit parameter fields that do not apply. Only SIMILAR uses messageContext; only ADMIN_ACTION uses action.
- For SIMILAR, decide whether "the conversation" means the chat history (type "chat"),
  a ticket's message thread (type "ticket"), or cannot be determined (type "unclear").
  When unclear, set needsClarification true and write a short clarificationQuestion.
- For ADMIN_ACTION, list every required field the user did not provide in missingFields.
  Creating a ticket requires: title, description, customerId. When missingFields is
  non-empty, set needsClarification true.
- A follow-up like "yes" or "the first one" keeps the intent of the previous exchange;
  use the conversation history to resolve it.
- Never invent ticket ids, emails, or dates the user did not state.`

const plannerRules = `Rules:
- Use ONLY the tools listed above, with their exact names. Never invent a tool.
- Use ONLY the input keys each tool's schema declares, with their exact names.
- Never set callerId, callerRole, or organizationId; the caller's identity is
  injected into every call. Tools that take an organization scope declare their
  own key for it in their schema.
- Respond with a JSON array of steps and nothing else:
  [{"tool": "searchTickets", "input": {"status": "open"}, "reasoning": "one short phrase"}]
- Steps run in order. To feed a value from an earlier step into a later one, write
  "{{step1.id}}" (1-based step number, then a dot path into that step's result data).
- Do not plan getCurrentUserContext or getSystemInfo; that context is already loaded.
- If a required field for an action is missing, return [] — an empty array. Never
  fabricate values for missing fields.
- Plan the minimum number of steps that answers the query. Most queries need one.`

// buildPlannerPrompt assembles the planner's system prompt from the live
// tool catalog so the tool list can never drift from the registry.
func buildPlannerPrompt(catalog []tool.Spec, ambient *Ambient, analysis *IntentAnalysis) string {
	var b strings.Builder
	b.WriteString("You are the tool planner for Sage, a help-desk assistant.\n")
	b.WriteString("Turn the analyzed query into an ordered list of tool calls.\n\n")
	b.WriteString("Available tools:\n")
	for _, spec := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
		if params, err := json.Marshal(spec.Parameters); err == nil {
			fmt.Fprintf(&b, "  input schema: %s\n", params)
		}
	}
	b.WriteString("\n")
	b.WriteString(plannerRules)
	b.WriteString("\n\n")

	if ambient != nil && ambient.CurrentUser != nil {
		fmt.Fprintf(&b, "Caller: %s (role %s, user id %s",
			ambient.CurrentUser.FullName(), ambient.CurrentUser.Role, ambient.CurrentUser.ID)
		if ambient.Organization != nil {
			fmt.Fprintf(&b, ", organization %s id %s", ambient.Organization.Name, ambient.Organization.ID)
		}
		b.WriteString(")\n")
	}

	if analysis != nil {
		fmt.Fprintf(&b, "Intent: %s (%s)\n", analysis.Intent, analysis.Explanation)
		if params, err := json.Marshal(analysis.Parameters); err == nil && string(params) != "{}" {
			fmt.Fprintf(&b, "Extracted parameters: %s\n", params)
		}
	}
	return b.String()
}

const responderRules = `You are Sage, a friendly help-desk assistant.
Write the reply the user will read.

Rules:
- Answer in plain conversational prose. Never show JSON, tool names, or internal ids
  unless the user asked for an id.
- Ground every statement in the tool results below. Never invent tickets, users, or
  numbers that are not in the results.
- If a step failed, say plainly what could not be done and why, in the step's order.
- If results are empty, say nothing was found and suggest what to try instead.
- If the request could not be completed because information was missing, list exactly
  what is needed (required fields first, then optional ones).
- Keep it brief. No preamble, no sign-off.`

// buildResponderPrompt assembles the response generator's system prompt.
// It always runs, whether or not the pipeline succeeded, so the user never
// sees raw errors or silence.
func buildResponderPrompt(state *State) string {
	var b strings.Builder
	b.WriteString(responderRules)
	b.WriteString("\n\n")

	if info := state.Context.SystemInfo; info != nil {
		fmt.Fprintf(&b, "About you: %s (version %s). Capabilities:\n", info.Description, info.Version)
		for _, c := range info.Capabilities {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	if u := state.Context.CurrentUser; u != nil {
		fmt.Fprintf(&b, "You are talking to %s (role %s)", u.FullName(), u.Role)
		if org := state.Context.Organization; org != nil {
			fmt.Fprintf(&b, " of %s", org.Name)
		}
		b.WriteString(".\n\n")
	}

	if state.Analysis != nil {
		fmt.Fprintf(&b, "The query was classified as %s.\n", state.Analysis.Intent)
		if ar := state.Analysis.Parameters.Action; ar != nil && len(ar.MissingFields) > 0 {
			fmt.Fprintf(&b, "The requested %s %s is missing required fields: %s. Ask for them.\n",
				ar.Resource, ar.Type, strings.Join(ar.MissingFields, ", "))
		}
	}
	if state.Failed {
		fmt.Fprintf(&b, "The %s stage failed internally. Apologize briefly and ask the user to rephrase.\n", state.FailureStage)
	}

	if len(state.Results) > 0 {
		b.WriteString("\nTool results, in execution order:\n")
		for i, sr := range state.Results {
			fmt.Fprintf(&b, "Step %d (%s): ", i+1, sr.Action.Tool)
			if sr.Result.Success {
				data, err := json.Marshal(sr.Result.Data)
				if err != nil {
					data = []byte(`"unrenderable result"`)
				}
				b.Write(data)
			} else {
				fmt.Fprintf(&b, "FAILED: %s", sr.Result.Error)
			}
			b.WriteString("\n")
		}
	} else if state.Analysis != nil && !state.Failed {
		b.WriteString("\nNo tools were run for this query.\n")
	}
	return b.String()
}

// historyWindow bounds how much conversation history rides along on each
// model call.
const historyWindow = 20

// promptMessages builds the message list for a model call: history, then
// the current query as the final user message.
func promptMessages(history []protocol.ChatMessage, query string) []protocol.ChatMessage {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	msgs := make([]protocol.ChatMessage, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, protocol.ChatMessage{Role: "user", Content: query})
	return msgs
}
