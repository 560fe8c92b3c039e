package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// --- SearchTicketsTool ---

type SearchTicketsTool struct {
	Store store.Store
}

func (t *SearchTicketsTool) Name() string { return NameSearchTickets }
func (t *SearchTicketsTool) Description() string {
	return "Search tickets by priority, status, assignee, customer, and date ranges"
}

func (t *SearchTicketsTool) Parameters() map[string]any {
	return schema(map[string]any{
		"status":        prop("string", fmt.Sprintf("ticket status, one of %v", protocol.TicketStatuses())),
		"priority":      prop("string", fmt.Sprintf("ticket priority, one of %v", protocol.TicketPriorities())),
		"assigneeId":    prop("string", "only tickets assigned to this agent"),
		"customerId":    prop("string", "only tickets opened by this customer"),
		"unassigned":    prop("boolean", "only tickets with no assignee"),
		"createdAfter":  prop("string", "created on or after this date (RFC3339 or natural date)"),
		"createdBefore": prop("string", "created before this date"),
		"updatedAfter":  prop("string", "updated on or after this date"),
		"updatedBefore": prop("string", "updated before this date"),
		"limit":         prop("number", "maximum tickets to return, default 25"),
	})
}

func (t *SearchTicketsTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, &PermissionError{Tool: NameSearchTickets, RequiredRole: "authenticated"}
	}

	filter := store.TicketFilter{Limit: 25}

	if raw := getString(input, "priority"); raw != "" {
		p := protocol.TicketPriority(raw)
		if !p.Valid() {
			return nil, &ValidationError{
				Tool:    NameSearchTickets,
				Message: fmt.Sprintf("invalid priority %q, allowed: %v", raw, protocol.TicketPriorities()),
			}
		}
		filter.Priority = &p
	}
	if raw := getString(input, "status"); raw != "" {
		s := protocol.TicketStatus(raw)
		if !s.Valid() {
			return nil, &ValidationError{
				Tool:    NameSearchTickets,
				Message: fmt.Sprintf("invalid status %q, allowed: %v", raw, protocol.TicketStatuses()),
			}
		}
		filter.Status = &s
	}
	filter.AssigneeID = getString(input, "assigneeId")
	filter.CustomerID = getString(input, "customerId")
	filter.Unassigned = getBool(input, "unassigned")
	filter.CreatedAfter = getTime(input, "createdAfter")
	filter.CreatedBefore = getTime(input, "createdBefore")
	filter.UpdatedAfter = getTime(input, "updatedAfter")
	filter.UpdatedBefore = getTime(input, "updatedBefore")
	if limit, ok := input["limit"].(float64); ok && limit > 0 {
		filter.Limit = int(limit)
	}

	// Scope by caller permissions: customers only ever see their own
	// tickets; everyone else is confined to their organization.
	switch caller.Role {
	case protocol.RoleCustomer:
		filter.CustomerID = caller.UserID
	default:
		if caller.OrganizationID != "" {
			filter.OrganizationID = caller.OrganizationID
		}
	}

	tickets, err := t.Store.SearchTickets(filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameSearchTickets, err)
	}
	if tickets == nil {
		tickets = []*protocol.Ticket{}
	}
	return tickets, nil
}

// --- GetTicketDetailsTool ---

type GetTicketDetailsTool struct {
	Store store.Store
}

// TicketDetails bundles a ticket with its message thread.
type TicketDetails struct {
	Ticket   *protocol.Ticket         `json:"ticket"`
	Messages []protocol.TicketMessage `json:"messages"`
}

func (t *GetTicketDetailsTool) Name() string { return NameGetTicketDetails }
func (t *GetTicketDetailsTool) Description() string {
	return "Get a ticket with its full message thread"
}

func (t *GetTicketDetailsTool) Parameters() map[string]any {
	return schema(map[string]any{
		"ticketId": prop("string", "the ticket id"),
	}, "ticketId")
}

func (t *GetTicketDetailsTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	caller, _ := CallerFromContext(ctx)

	ticketID := getString(input, "ticketId")
	if ticketID == "" {
		return nil, &ValidationError{Tool: NameGetTicketDetails, MissingFields: []string{"ticketId"}}
	}

	tk, err := t.Store.GetTicket(ticketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Tool: NameGetTicketDetails, Resource: "ticket", Ref: ticketID}
		}
		return nil, fmt.Errorf("%s: %w", NameGetTicketDetails, err)
	}

	if caller.Role == protocol.RoleCustomer && tk.CustomerID != caller.UserID {
		return nil, &PermissionError{Tool: NameGetTicketDetails, RequiredRole: string(protocol.RoleAgent)}
	}
	if caller.Role != protocol.RoleAdmin && caller.OrganizationID != "" &&
		tk.OrganizationID != "" && tk.OrganizationID != caller.OrganizationID {
		return nil, &NotFoundError{Tool: NameGetTicketDetails, Resource: "ticket", Ref: ticketID}
	}

	msgs, err := t.Store.ListTicketMessages(ticketID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameGetTicketDetails, err)
	}
	return &TicketDetails{Ticket: tk, Messages: msgs}, nil
}

// --- CreateTicketTool ---

type CreateTicketTool struct {
	Store store.Store
}

func (t *CreateTicketTool) Name() string { return NameCreateTicket }
func (t *CreateTicketTool) Description() string {
	return "Create a support ticket for a customer"
}

func (t *CreateTicketTool) Parameters() map[string]any {
	return schema(map[string]any{
		"title":                prop("string", "short ticket title"),
		"description":          prop("string", "full problem description"),
		"customerId":           prop("string", "id of the customer the ticket is for"),
		"priority":             prop("string", fmt.Sprintf("one of %v, default %s", protocol.TicketPriorities(), protocol.PriorityMedium)),
		"status":               prop("string", fmt.Sprintf("one of %v, default %s", protocol.TicketStatuses(), protocol.TicketOpen)),
		"assigneeId":           prop("string", "optional agent to assign"),
		"ticketOrganizationId": prop("string", "organization to file the ticket under, default the caller's"),
	}, "title", "description", "customerId")
}

func (t *CreateTicketTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	caller, _ := CallerFromContext(ctx)

	title := getString(input, "title")
	description := getString(input, "description")
	customerID := getString(input, "customerId")

	// Aggregate every missing required field into a single error.
	var missing []string
	if title == "" {
		missing = append(missing, "title")
	}
	if description == "" {
		missing = append(missing, "description")
	}
	if customerID == "" {
		missing = append(missing, "customerId")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Tool: NameCreateTicket, MissingFields: missing}
	}

	priority := protocol.PriorityMedium
	if raw := getString(input, "priority"); raw != "" {
		priority = protocol.TicketPriority(raw)
		if !priority.Valid() {
			return nil, &ValidationError{
				Tool:    NameCreateTicket,
				Message: fmt.Sprintf("invalid priority %q, allowed: %v", raw, protocol.TicketPriorities()),
			}
		}
	}
	status := protocol.TicketOpen
	if raw := getString(input, "status"); raw != "" {
		status = protocol.TicketStatus(raw)
		if !status.Valid() {
			return nil, &ValidationError{
				Tool:    NameCreateTicket,
				Message: fmt.Sprintf("invalid status %q, allowed: %v", raw, protocol.TicketStatuses()),
			}
		}
	}

	if caller.Role == protocol.RoleCustomer && customerID != caller.UserID {
		return nil, &PermissionError{Tool: NameCreateTicket, RequiredRole: string(protocol.RoleAgent)}
	}

	// The referenced customer must actually resolve to a customer account.
	// A missing id is a hard failure, never a default.
	customer, err := t.Store.GetUser(customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Tool: NameCreateTicket, Resource: "customer", Ref: customerID}
		}
		return nil, fmt.Errorf("%s: %w", NameCreateTicket, err)
	}
	if customer.Role != protocol.RoleCustomer {
		return nil, &ValidationError{
			Tool:    NameCreateTicket,
			Message: fmt.Sprintf("user %q has role %q, not %q", customerID, customer.Role, protocol.RoleCustomer),
		}
	}

	assigneeID := getString(input, "assigneeId")
	if assigneeID != "" {
		assignee, err := t.Store.GetUser(assigneeID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &NotFoundError{Tool: NameCreateTicket, Resource: "assignee", Ref: assigneeID}
			}
			return nil, fmt.Errorf("%s: %w", NameCreateTicket, err)
		}
		if assignee.Role != protocol.RoleAgent {
			return nil, &ValidationError{
				Tool:    NameCreateTicket,
				Message: fmt.Sprintf("assignee %q has role %q, not %q", assigneeID, assignee.Role, protocol.RoleAgent),
			}
		}
	}

	organizationID := getString(input, "ticketOrganizationId")
	if organizationID == "" {
		organizationID = caller.OrganizationID
	}

	tk := &protocol.Ticket{
		ID:             uuid.NewString(),
		Title:          title,
		Description:    description,
		Status:         status,
		Priority:       priority,
		CustomerID:     customerID,
		AssigneeID:     assigneeID,
		OrganizationID: organizationID,
	}
	if err := t.Store.CreateTicket(tk); err != nil {
		return nil, fmt.Errorf("%s: %w", NameCreateTicket, err)
	}
	return tk, nil
}

// --- UpdateTicketTool ---

type UpdateTicketTool struct {
	Store store.Store
}

func (t *UpdateTicketTool) Name() string { return NameUpdateTicket }
func (t *UpdateTicketTool) Description() string {
	return "Update a ticket's title, description, status, priority, or assignee"
}

func (t *UpdateTicketTool) Parameters() map[string]any {
	return schema(map[string]any{
		"ticketId": prop("string", "the ticket id"),
		"updates": map[string]any{
			"type":        "object",
			"description": "fields to change",
			"properties": map[string]any{
				"title":       prop("string", "new title"),
				"description": prop("string", "new description"),
				"status":      prop("string", fmt.Sprintf("one of %v", protocol.TicketStatuses())),
				"priority":    prop("string", fmt.Sprintf("one of %v", protocol.TicketPriorities())),
				"assigneeId":  prop("string", "agent to assign, empty string to unassign"),
			},
		},
	}, "ticketId", "updates")
}

func (t *UpdateTicketTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	caller, _ := CallerFromContext(ctx)

	ticketID := getString(input, "ticketId")
	if ticketID == "" {
		return nil, &ValidationError{Tool: NameUpdateTicket, MissingFields: []string{"ticketId"}}
	}
	updates := getMap(input, "updates")
	if len(updates) == 0 {
		return nil, &ValidationError{Tool: NameUpdateTicket, Message: "no updates provided"}
	}

	tk, err := t.Store.GetTicket(ticketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Tool: NameUpdateTicket, Resource: "ticket", Ref: ticketID}
		}
		return nil, fmt.Errorf("%s: %w", NameUpdateTicket, err)
	}

	// Permission is re-derived here, never trusted from the plan: agents
	// and admins may update tickets; customers only their own, and only
	// when the organization has granted that capability.
	switch caller.Role {
	case protocol.RoleAdmin, protocol.RoleAgent:
	case protocol.RoleCustomer:
		if tk.CustomerID != caller.UserID {
			return nil, &PermissionError{Tool: NameUpdateTicket, RequiredRole: string(protocol.RoleAgent)}
		}
		org, err := t.Store.GetOrganization(tk.OrganizationID)
		if err != nil || !org.Settings.CustomersCanEditTickets {
			return nil, &PermissionError{Tool: NameUpdateTicket, RequiredRole: string(protocol.RoleAgent)}
		}
	default:
		return nil, &PermissionError{Tool: NameUpdateTicket, RequiredRole: string(protocol.RoleAgent)}
	}

	var upd store.TicketUpdate
	if v, ok := updates["title"].(string); ok {
		upd.Title = &v
	}
	if v, ok := updates["description"].(string); ok {
		upd.Description = &v
	}
	if v, ok := updates["status"].(string); ok {
		s := protocol.TicketStatus(v)
		if !s.Valid() {
			return nil, &ValidationError{
				Tool:    NameUpdateTicket,
				Message: fmt.Sprintf("invalid status %q, allowed: %v", v, protocol.TicketStatuses()),
			}
		}
		upd.Status = &s
	}
	if v, ok := updates["priority"].(string); ok {
		p := protocol.TicketPriority(v)
		if !p.Valid() {
			return nil, &ValidationError{
				Tool:    NameUpdateTicket,
				Message: fmt.Sprintf("invalid priority %q, allowed: %v", v, protocol.TicketPriorities()),
			}
		}
		upd.Priority = &p
	}
	if v, ok := updates["assigneeId"].(string); ok {
		if v != "" {
			assignee, err := t.Store.GetUser(v)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, &NotFoundError{Tool: NameUpdateTicket, Resource: "assignee", Ref: v}
				}
				return nil, fmt.Errorf("%s: %w", NameUpdateTicket, err)
			}
			if assignee.Role != protocol.RoleAgent {
				return nil, &ValidationError{
					Tool:    NameUpdateTicket,
					Message: fmt.Sprintf("assignee %q has role %q, not %q", v, assignee.Role, protocol.RoleAgent),
				}
			}
		}
		upd.AssigneeID = &v
	}

	updated, err := t.Store.UpdateTicket(ticketID, upd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameUpdateTicket, err)
	}
	return updated, nil
}
