package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/deskd-io/deskd/internal/embed"
	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// The fixed tool-name enumeration. Only these names can ever run; the
// permission model depends on the set being closed.
const (
	NameSearchTickets         = "searchTickets"
	NameGetTicketDetails      = "getTicketDetails"
	NameCreateTicket          = "createTicket"
	NameFindUsers             = "findUsers"
	NameGetCurrentUserContext = "getCurrentUserContext"
	NameFindSimilarMessages   = "findSimilarMessages"
	NameGetSystemInfo         = "getSystemInfo"
	NameUpdateOrganization    = "updateOrganization"
	NameManageUsers           = "manageUsers"
	NameUpdateTicket          = "updateTicket"
)

// Registry is the immutable mapping from tool name to handler, built once
// at process start. There is no way to register or remove tools afterwards.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

// Deps carries the collaborators the fixed tool set needs.
type Deps struct {
	Store    store.Store
	Embedder embed.Embedder
	Info     protocol.SystemInfo
	Logger   *slog.Logger
}

// NewRegistry builds the fixed tool set. The returned registry never
// changes for the life of the process.
func NewRegistry(deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tools := []Tool{
		&SearchTicketsTool{Store: deps.Store},
		&GetTicketDetailsTool{Store: deps.Store},
		&CreateTicketTool{Store: deps.Store},
		&UpdateTicketTool{Store: deps.Store},
		&FindUsersTool{Store: deps.Store},
		&GetCurrentUserContextTool{Store: deps.Store},
		&FindSimilarMessagesTool{Store: deps.Store, Embedder: deps.Embedder},
		&GetSystemInfoTool{Info: deps.Info},
		&UpdateOrganizationTool{Store: deps.Store},
		&ManageUsersTool{Store: deps.Store},
	}

	m := make(map[string]Tool, len(tools))
	for _, t := range tools {
		m[t.Name()] = t
	}
	return &Registry{tools: m, logger: logger}
}

// Spec is a tool's name, description, and input schema, for building model
// prompts.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Specs returns the catalog of registered tools, sorted by name.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, Spec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Has reports whether name is a member of the fixed tool set.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// The injected identity keys. Plans may never set these; each tool that
// takes an organization scope names its own key (findOrganizationId,
// ticketOrganizationId, targetOrganizationId) so a planned value can never
// shadow the caller's identity.
var reservedInputKeys = []string{"callerId", "callerRole", "organizationId"}

// Dispatch runs the named tool and folds its outcome into the uniform
// ToolResult envelope. This is the single context-injection point: the
// caller's identity is merged into the input and the context before the
// tool runs, regardless of which tool it is. A name outside the registry
// returns *UnknownToolError — fatal for the request, never an envelope.
func (r *Registry) Dispatch(ctx context.Context, caller protocol.Caller, name string, input map[string]any) (protocol.ToolResult, error) {
	t, ok := r.tools[name]
	if !ok {
		return protocol.ToolResult{}, &UnknownToolError{Name: name}
	}

	for _, k := range reservedInputKeys {
		if _, clash := input[k]; clash {
			r.logger.Warn("plan step sets a reserved input key",
				"tool", name,
				"key", k,
				"caller_role", caller.Role,
			)
			return protocol.Fail(fmt.Sprintf("%s: input key %q is reserved for the caller's identity", name, k)), nil
		}
	}

	merged := make(map[string]any, len(input)+3)
	for k, v := range input {
		merged[k] = v
	}
	merged["callerId"] = caller.UserID
	merged["callerRole"] = string(caller.Role)
	merged["organizationId"] = caller.OrganizationID

	ctx = WithCaller(ctx, caller)

	data, err := t.Execute(ctx, merged)
	if err != nil {
		r.logger.Warn("tool failed",
			"tool", name,
			"caller_role", caller.Role,
			"input_keys", inputKeys(input),
			"error", err,
		)
		return protocol.Fail(err.Error()), nil
	}

	r.logger.Debug("tool succeeded",
		"tool", name,
		"caller_role", caller.Role,
		"input_keys", inputKeys(input),
	)
	return protocol.OK(data), nil
}

func inputKeys(input map[string]any) []string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
