package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/deskd-io/deskd/internal/provider"
	"github.com/deskd-io/deskd/internal/tool"
	"github.com/deskd-io/deskd/pkg/protocol"
)

const defaultStepTimeout = 60 * time.Second

// Agent is the request orchestrator: intent analysis, context loading,
// planning, sequential tool execution, response generation. It is safe
// for concurrent use; all per-request state lives in a State owned by the
// single Process call.
type Agent struct {
	analyzer    *Analyzer
	planner     *Planner
	responder   *Responder
	registry    *tool.Registry
	logger      *slog.Logger
	stepTimeout time.Duration
}

// Option configures an Agent.
type Option func(*Agent)

// WithStepTimeout bounds each tool execution. Zero keeps the default.
func WithStepTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.stepTimeout = d
		}
	}
}

// WithLogger sets the agent's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// New wires the three model-backed stages around a shared provider and
// the fixed tool registry.
func New(p provider.Provider, reg *tool.Registry, opts ...Option) *Agent {
	a := &Agent{
		registry:    reg,
		logger:      slog.Default(),
		stepTimeout: defaultStepTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.analyzer = NewAnalyzer(p, a.logger)
	a.planner = NewPlanner(p, reg, a.logger)
	a.responder = NewResponder(p, a.logger)
	return a
}

// Process handles one query end to end. The returned error is non-nil only
// for unrecoverable faults (a plan naming an unknown tool); everything
// else — parse failures, tool failures, empty results — degrades into a
// natural-language response.
func (a *Agent) Process(ctx context.Context, caller protocol.Caller, query string, history []protocol.ChatMessage) (*Result, error) {
	start := time.Now()
	state := &State{
		Query:   query,
		Context: Ambient{ConversationHistory: history},
	}

	analysis, err := a.analyzer.Analyze(ctx, query, history)
	if err != nil {
		a.logger.Error("intent analysis failed", "error", err)
		state.Failed = true
		state.FailureStage = "intent"
		return &Result{Response: a.responder.Respond(ctx, state), State: state}, nil
	}
	state.Analysis = analysis
	state.Context.Parameters = &analysis.Parameters

	// Clarification short-circuit: an ambiguous message reference returns
	// the analyzer's question verbatim. No planner call, no tools — not
	// even the ambient context load.
	if mc := analysis.Parameters.MessageContext; mc != nil && mc.NeedsClarification {
		a.logger.Info("clarification requested",
			"intent", analysis.Intent,
			"duration", time.Since(start),
		)
		return &Result{Response: mc.ClarificationQuestion, State: state}, nil
	}

	a.loadContext(ctx, caller, state)

	if a.needsPlan(analysis) {
		plan, err := a.planner.Plan(ctx, query, &state.Context, analysis)
		if err != nil {
			var unknown *tool.UnknownToolError
			if errors.As(err, &unknown) {
				a.logger.Error("plan names unregistered tool", "tool", unknown.Name)
				state.Failed = true
				state.FailureStage = "plan"
				return &Result{Response: a.responder.Respond(ctx, state), State: state}, unknown
			}
			a.logger.Error("planning failed", "error", err)
			state.Failed = true
			state.FailureStage = "plan"
			return &Result{Response: a.responder.Respond(ctx, state), State: state}, nil
		}
		state.Plan = plan
		a.executePlan(ctx, caller, state)
	}

	resp := a.responder.Respond(ctx, state)
	a.logger.Info("request handled",
		"intent", analysis.Intent,
		"steps", len(state.Results),
		"caller_role", caller.Role,
		"duration", time.Since(start),
	)
	return &Result{Response: resp, State: state}, nil
}

// needsPlan reports whether the planner runs at all for this analysis.
// Social and self-referential queries are answered from loaded context;
// chat-history questions are answered from the history itself; an action
// with missing required fields gets an empty plan so the responder asks
// for what is needed instead of guessing.
func (a *Agent) needsPlan(analysis *IntentAnalysis) bool {
	switch analysis.Intent {
	case IntentSystem, IntentGreeting:
		return false
	}
	if mc := analysis.Parameters.MessageContext; mc != nil && mc.Type == "chat" {
		return false
	}
	if ar := analysis.Parameters.Action; ar != nil && (ar.NeedsClarification || len(ar.MissingFields) > 0) {
		return false
	}
	return true
}

// loadContext front-loads ambient context before planning: the system
// identity for queries about the assistant, the caller's user and
// organization records for everything else. The planner never plans these;
// failures here degrade the response but do not abort the request.
func (a *Agent) loadContext(ctx context.Context, caller protocol.Caller, state *State) {
	switch state.Analysis.Intent {
	case IntentSystem, IntentGreeting:
		res, err := a.registry.Dispatch(ctx, caller, tool.NameGetSystemInfo, nil)
		if err != nil || !res.Success {
			a.logger.Warn("system info unavailable", "error", err)
			return
		}
		if info, ok := res.Data.(protocol.SystemInfo); ok {
			state.Context.SystemInfo = &info
		}
	default:
		res, err := a.registry.Dispatch(ctx, caller, tool.NameGetCurrentUserContext, nil)
		if err != nil || !res.Success {
			a.logger.Warn("user context unavailable", "caller", caller.UserID, "error", err)
			return
		}
		if uc, ok := res.Data.(*tool.UserContext); ok {
			state.Context.CurrentUser = uc.User
			state.Context.Organization = uc.Organization
		}
	}
}

// executePlan runs the plan strictly in order. Each step's input has
// earlier step references resolved first; a step whose reference cannot be
// resolved, or whose tool fails, is recorded as a failed result and
// execution continues so the responder can narrate exactly what happened.
func (a *Agent) executePlan(ctx context.Context, caller protocol.Caller, state *State) {
	for i, step := range state.Plan {
		input, err := resolveReferences(step.Input, state.Results)
		if err != nil {
			a.logger.Warn("step reference unresolved", "step", i+1, "tool", step.Tool, "error", err)
			state.Results = append(state.Results, StepResult{
				Action: step,
				Result: protocol.Fail(err.Error()),
			})
			continue
		}

		stepCtx, cancel := context.WithTimeout(ctx, a.stepTimeout)
		res, err := a.registry.Dispatch(stepCtx, caller, step.Tool, input)
		cancel()
		if err != nil {
			// Dispatch only errors on unknown names and the plan was
			// validated, so this is a bug; record it and keep going.
			res = protocol.Fail(err.Error())
		}
		state.Results = append(state.Results, StepResult{Action: step, Result: res})
	}
}

var stepRefPattern = regexp.MustCompile(`\{\{step(\d+)\.([^}]+)\}\}`)

// resolveReferences substitutes {{stepN.path}} placeholders in a step's
// input with values from earlier results. A placeholder that is the whole
// value keeps the referenced value's type; one embedded in a longer string
// is interpolated as text.
func resolveReferences(input map[string]any, prior []StepResult) (map[string]any, error) {
	if len(input) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		rv, err := resolveValue(v, prior)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func resolveValue(v any, prior []StepResult) (any, error) {
	switch val := v.(type) {
	case string:
		return resolveString(val, prior)
	case map[string]any:
		return resolveReferences(val, prior)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			rv, err := resolveValue(elem, prior)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveString(s string, prior []StepResult) (any, error) {
	matches := stepRefPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string reference keeps the native type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		sub := stepRefPattern.FindStringSubmatch(s)
		return lookupRef(sub[1], sub[2], prior)
	}

	var err error
	resolved := stepRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		sub := stepRefPattern.FindStringSubmatch(ref)
		v, lerr := lookupRef(sub[1], sub[2], prior)
		if lerr != nil {
			err = lerr
			return ref
		}
		return fmt.Sprintf("%v", v)
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// lookupRef resolves one stepN.path reference against prior results. Step
// numbers are 1-based; the path is a dot walk through the step's result
// data after JSON normalization, with numeric segments indexing arrays.
func lookupRef(stepNum, path string, prior []StepResult) (any, error) {
	n, err := strconv.Atoi(stepNum)
	if err != nil || n < 1 || n > len(prior) {
		return nil, fmt.Errorf("reference to step %s: no such step", stepNum)
	}
	sr := prior[n-1]
	if !sr.Result.Success {
		return nil, fmt.Errorf("reference to step %d (%s): step failed", n, sr.Action.Tool)
	}

	raw, err := json.Marshal(sr.Result.Data)
	if err != nil {
		return nil, fmt.Errorf("reference to step %d: %w", n, err)
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("reference to step %d: %w", n, err)
	}

	cur := data
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("reference step%d.%s: field %q not in result", n, path, seg)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("reference step%d.%s: index %q out of range", n, path, seg)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("reference step%d.%s: cannot descend into %T", n, path, cur)
		}
	}
	return cur, nil
}
