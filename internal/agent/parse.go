package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports malformed or non-JSON model output from the intent
// analyzer or the tool planner. It is unrecoverable for the request: the
// user sees a generic apology, never raw model text, and there is no
// silent retry with fabricated defaults.
type ParseError struct {
	Stage string // "intent" or "plan"
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unusable model output: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// cleanModelJSON strips Markdown code fences and surrounding prose from a
// model reply, leaving the JSON payload. Models wrap JSON in ```json
// fences or lead with a sentence often enough that this cleanup runs on
// every parse.
func cleanModelJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	// Cut to the outermost JSON value.
	objStart := strings.IndexAny(s, "{[")
	if objStart == -1 {
		return ""
	}
	var objEnd int
	if s[objStart] == '{' {
		objEnd = strings.LastIndex(s, "}")
	} else {
		objEnd = strings.LastIndex(s, "]")
	}
	if objEnd <= objStart {
		return ""
	}
	return s[objStart : objEnd+1]
}

// decodeIntentAnalysis strictly decodes and validates an IntentAnalysis.
// Any schema violation is a parse failure, never a best-effort partial
// object.
func decodeIntentAnalysis(raw string) (*IntentAnalysis, error) {
	cleaned := cleanModelJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var analysis IntentAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if !analysis.Intent.Valid() {
		return nil, fmt.Errorf("unknown intent %q", analysis.Intent)
	}
	if mc := analysis.Parameters.MessageContext; mc != nil {
		switch mc.Type {
		case "chat", "ticket", "unclear", "":
		default:
			return nil, fmt.Errorf("unknown messageContext type %q", mc.Type)
		}
		if mc.NeedsClarification && strings.TrimSpace(mc.ClarificationQuestion) == "" {
			return nil, fmt.Errorf("needsClarification set without a clarificationQuestion")
		}
	}
	if ar := analysis.Parameters.Action; ar != nil {
		// Missing fields always require clarification; the planner is
		// never asked to plan around them.
		if len(ar.MissingFields) > 0 {
			ar.NeedsClarification = true
		}
	}
	return &analysis, nil
}

// decodePlan strictly decodes a planned action list. An empty array is a
// valid plan (it signals missing required fields, not an error).
func decodePlan(raw string) ([]Action, error) {
	cleaned := cleanModelJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON array in output")
	}

	var plan []Action
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	for i, a := range plan {
		if strings.TrimSpace(a.Tool) == "" {
			return nil, fmt.Errorf("step %d has no tool name", i+1)
		}
	}
	return plan, nil
}
