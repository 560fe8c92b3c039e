package protocol

import (
	"slices"
	"time"
)

// Role is a user's role within an organization.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
)

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleAgent, RoleCustomer}
}

// Valid reports whether the role is a known role.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

// TicketStatus represents the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

// TicketStatuses lists every valid ticket status.
func TicketStatuses() []TicketStatus {
	return []TicketStatus{TicketOpen, TicketInProgress, TicketResolved, TicketClosed}
}

// Valid reports whether the status is a known status.
func (s TicketStatus) Valid() bool {
	return slices.Contains(TicketStatuses(), s)
}

// TicketPriority represents the urgency of a support ticket.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// TicketPriorities lists every valid ticket priority.
func TicketPriorities() []TicketPriority {
	return []TicketPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

// Valid reports whether the priority is a known priority.
func (p TicketPriority) Valid() bool {
	return slices.Contains(TicketPriorities(), p)
}

// User is an account known to the desk: an admin, a support agent, or a customer.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Role           Role       `json:"role"`
	OrganizationID string     `json:"organization_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// FullName returns the user's first and last name joined with a space.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// OrganizationSettings holds per-organization behavior switches.
type OrganizationSettings struct {
	// CustomersCanEditTickets grants customers the ability to update
	// their own tickets. Off by default.
	CustomersCanEditTickets bool `json:"customers_can_edit_tickets"`
}

// Organization is a tenant of the desk.
type Organization struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Settings  OrganizationSettings `json:"settings"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	DeletedAt *time.Time           `json:"deleted_at,omitempty"`
}

// OrganizationMember links a user to an organization with a role.
type OrganizationMember struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ticket is a customer support ticket.
type Ticket struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         TicketStatus   `json:"status"`
	Priority       TicketPriority `json:"priority"`
	CustomerID     string         `json:"customer_id"`
	AssigneeID     string         `json:"assignee_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// TicketMessage is a single message on a ticket's thread.
type TicketMessage struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Caller identifies the authenticated user a request runs as. It is supplied
// by the identity layer and injected into every tool call; tools re-derive
// permission decisions from it rather than trusting the plan.
type Caller struct {
	UserID         string `json:"user_id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}
