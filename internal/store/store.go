package store

import (
	"errors"
	"time"

	"github.com/deskd-io/deskd/pkg/protocol"
)

// ErrNotFound is returned when a record does not exist or is soft-deleted.
// Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for the desk's records. All reads
// exclude soft-deleted rows (deleted_at set) by default.
type Store interface {
	// Users
	GetUser(id string) (*protocol.User, error)
	FindUsers(filter UserFilter) ([]*protocol.User, error)
	CreateUser(u *protocol.User) error
	UpdateUser(id string, upd UserUpdate) (*protocol.User, error)
	DeleteUser(id string) error

	// Organizations
	GetOrganization(id string) (*protocol.Organization, error)
	UpdateOrganization(id string, upd OrgUpdate) (*protocol.Organization, error)
	AddMember(m protocol.OrganizationMember) error
	RemoveMember(organizationID, userID string) error
	ListMembers(organizationID string) ([]protocol.OrganizationMember, error)

	// Tickets
	GetTicket(id string) (*protocol.Ticket, error)
	SearchTickets(filter TicketFilter) ([]*protocol.Ticket, error)
	CreateTicket(t *protocol.Ticket) error
	UpdateTicket(id string, upd TicketUpdate) (*protocol.Ticket, error)
	ListTicketMessages(ticketID string) ([]protocol.TicketMessage, error)
	AppendTicketMessage(msg protocol.TicketMessage) error

	// Message embeddings
	SaveMessageEmbedding(messageID string, vector []float32) error
	SimilarMessages(vector []float32, threshold float64, limit int) ([]ScoredMessage, error)
	MessagesMissingEmbedding(limit int) ([]protocol.TicketMessage, error)
}

// UserFilter constrains user queries. Email is a case-insensitive exact
// match; name filtering happens in the caller (substring over the full name).
type UserFilter struct {
	Email          string
	Role           protocol.Role
	OrganizationID string
	Limit          int // 0 = no limit
}

// UserUpdate holds optional user field updates. Nil fields are left as-is.
type UserUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *protocol.Role
}

// OrgUpdate holds optional organization field updates.
type OrgUpdate struct {
	Name     *string
	Settings *protocol.OrganizationSettings
}

// TicketFilter constrains ticket searches. Nil/zero fields are not applied.
type TicketFilter struct {
	Status         *protocol.TicketStatus
	Priority       *protocol.TicketPriority
	AssigneeID     string
	CustomerID     string
	OrganizationID string
	Unassigned     bool
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	UpdatedAfter   *time.Time
	UpdatedBefore  *time.Time
	Limit          int // 0 = no limit
}

// TicketUpdate holds optional ticket field updates.
type TicketUpdate struct {
	Title       *string
	Description *string
	Status      *protocol.TicketStatus
	Priority    *protocol.TicketPriority
	AssigneeID  *string
}

// ScoredMessage is a ticket message with its similarity score against a
// query vector, ordered most similar first.
type ScoredMessage struct {
	Message    protocol.TicketMessage `json:"message"`
	Similarity float64                `json:"similarity"`
}
