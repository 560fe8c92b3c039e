package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deskd-io/deskd/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			email           TEXT NOT NULL,
			first_name      TEXT NOT NULL DEFAULT '',
			last_name       TEXT NOT NULL DEFAULT '',
			role            TEXT NOT NULL,
			organization_id TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			deleted_at      TEXT
		);

		CREATE TABLE IF NOT EXISTS organizations (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			settings   TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);

		CREATE TABLE IF NOT EXISTS organization_members (
			organization_id TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			role            TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			PRIMARY KEY (organization_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS tickets (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT 'open',
			priority        TEXT NOT NULL DEFAULT 'medium',
			customer_id     TEXT NOT NULL,
			assignee_id     TEXT NOT NULL DEFAULT '',
			organization_id TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			deleted_at      TEXT
		);

		CREATE TABLE IF NOT EXISTS ticket_messages (
			id         TEXT PRIMARY KEY,
			ticket_id  TEXT NOT NULL REFERENCES tickets(id),
			author_id  TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS message_embeddings (
			message_id TEXT PRIMARY KEY REFERENCES ticket_messages(id),
			vector     TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_customer ON tickets(customer_id);
		CREATE INDEX IF NOT EXISTS idx_messages_ticket ON ticket_messages(ticket_id);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// --- users ---

const userColumns = `id, email, first_name, last_name, role, organization_id, created_at, updated_at, deleted_at`

func (s *SQLiteStore) GetUser(id string) (*protocol.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) FindUsers(filter UserFilter) ([]*protocol.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL`
	var args []any

	if filter.Email != "" {
		query += " AND LOWER(email) = LOWER(?)"
		args = append(args, filter.Email)
	}
	if filter.Role != "" {
		query += " AND role = ?"
		args = append(args, string(filter.Role))
	}
	if filter.OrganizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, filter.OrganizationID)
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find users: %w", err)
	}
	defer rows.Close()

	var users []*protocol.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: find users scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) CreateUser(u *protocol.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO users (id, email, first_name, last_name, role, organization_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.FirstName, u.LastName, string(u.Role), u.OrganizationID,
		u.CreatedAt.Format(time.RFC3339), u.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateUser(id string, upd UserUpdate) (*protocol.User, error) {
	u, err := s.GetUser(id)
	if err != nil {
		return nil, err
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	u.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(`
		UPDATE users SET email = ?, first_name = ?, last_name = ?, role = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, u.Email, u.FirstName, u.LastName, string(u.Role), u.UpdatedAt.Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("store: update user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) DeleteUser(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.Exec(`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return nil
}

// --- organizations ---

func (s *SQLiteStore) GetOrganization(id string) (*protocol.Organization, error) {
	row := s.db.QueryRow(`SELECT id, name, settings, created_at, updated_at, deleted_at FROM organizations WHERE id = ? AND deleted_at IS NULL`, id)
	o, err := scanOrganization(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("organization %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get organization: %w", err)
	}
	return o, nil
}

// CreateOrganization inserts a new organization. Used by seeding and tests;
// organizations are otherwise provisioned outside the agent core.
func (s *SQLiteStore) CreateOrganization(o *protocol.Organization) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	settings, _ := json.Marshal(o.Settings)

	_, err := s.db.Exec(`
		INSERT INTO organizations (id, name, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, o.ID, o.Name, string(settings), o.CreatedAt.Format(time.RFC3339), o.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: create organization: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateOrganization(id string, upd OrgUpdate) (*protocol.Organization, error) {
	o, err := s.GetOrganization(id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		o.Name = *upd.Name
	}
	if upd.Settings != nil {
		o.Settings = *upd.Settings
	}
	o.UpdatedAt = time.Now().UTC()
	settings, _ := json.Marshal(o.Settings)

	_, err = s.db.Exec(`
		UPDATE organizations SET name = ?, settings = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, o.Name, string(settings), o.UpdatedAt.Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("store: update organization: %w", err)
	}
	return o, nil
}

func (s *SQLiteStore) AddMember(m protocol.OrganizationMember) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO organization_members (organization_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(organization_id, user_id) DO UPDATE SET role=excluded.role
	`, m.OrganizationID, m.UserID, string(m.Role), m.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: add member: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveMember(organizationID, userID string) error {
	result, err := s.db.Exec(`DELETE FROM organization_members WHERE organization_id = ? AND user_id = ?`, organizationID, userID)
	if err != nil {
		return fmt.Errorf("store: remove member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("member %q in organization %q: %w", userID, organizationID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListMembers(organizationID string) ([]protocol.OrganizationMember, error) {
	rows, err := s.db.Query(`SELECT organization_id, user_id, role, created_at FROM organization_members WHERE organization_id = ? ORDER BY created_at`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("store: list members: %w", err)
	}
	defer rows.Close()

	var members []protocol.OrganizationMember
	for rows.Next() {
		var m protocol.OrganizationMember
		var role, createdAt string
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan member: %w", err)
		}
		m.Role = protocol.Role(role)
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// --- tickets ---

const ticketColumns = `id, title, description, status, priority, customer_id, assignee_id, organization_id, created_at, updated_at, deleted_at`

func (s *SQLiteStore) GetTicket(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`SELECT `+ticketColumns+` FROM tickets WHERE id = ? AND deleted_at IS NULL`, id)
	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get ticket: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) SearchTickets(filter TicketFilter) ([]*protocol.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE deleted_at IS NULL`
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.Priority != nil {
		query += " AND priority = ?"
		args = append(args, string(*filter.Priority))
	}
	if filter.AssigneeID != "" {
		query += " AND assignee_id = ?"
		args = append(args, filter.AssigneeID)
	}
	if filter.Unassigned {
		query += " AND assignee_id = ''"
	}
	if filter.CustomerID != "" {
		query += " AND customer_id = ?"
		args = append(args, filter.CustomerID)
	}
	if filter.OrganizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, filter.OrganizationID)
	}
	if filter.CreatedAfter != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if filter.CreatedBefore != nil {
		query += " AND created_at <= ?"
		args = append(args, filter.CreatedBefore.UTC().Format(time.RFC3339))
	}
	if filter.UpdatedAfter != nil {
		query += " AND updated_at >= ?"
		args = append(args, filter.UpdatedAfter.UTC().Format(time.RFC3339))
	}
	if filter.UpdatedBefore != nil {
		query += " AND updated_at <= ?"
		args = append(args, filter.UpdatedBefore.UTC().Format(time.RFC3339))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("store: search tickets scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) CreateTicket(t *protocol.Ticket) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO tickets (id, title, description, status, priority, customer_id, assignee_id, organization_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.CustomerID,
		t.AssigneeID, t.OrganizationID, t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: create ticket: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTicket(id string, upd TicketUpdate) (*protocol.Ticket, error) {
	t, err := s.GetTicket(id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.AssigneeID != nil {
		t.AssigneeID = *upd.AssigneeID
	}
	t.UpdatedAt = time.Now().UTC()

	_, err = s.db.Exec(`
		UPDATE tickets SET title = ?, description = ?, status = ?, priority = ?, assignee_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, t.Title, t.Description, string(t.Status), string(t.Priority), t.AssigneeID,
		t.UpdatedAt.Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("store: update ticket: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) ListTicketMessages(ticketID string) ([]protocol.TicketMessage, error) {
	rows, err := s.db.Query(`SELECT id, ticket_id, author_id, body, created_at FROM ticket_messages WHERE ticket_id = ? ORDER BY created_at`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) AppendTicketMessage(msg protocol.TicketMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO ticket_messages (id, ticket_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.TicketID, msg.AuthorID, msg.Body, msg.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// --- message embeddings ---

func (s *SQLiteStore) SaveMessageEmbedding(messageID string, vector []float32) error {
	vec, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("store: encode embedding: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO message_embeddings (message_id, vector, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET vector=excluded.vector
	`, messageID, string(vec), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store: save embedding: %w", err)
	}
	return nil
}

// SimilarMessages ranks stored message embeddings by cosine similarity
// against the query vector, dropping results below threshold and capping
// at limit. Threshold and limit are always explicit — callers never get a
// silently varied default.
func (s *SQLiteStore) SimilarMessages(vector []float32, threshold float64, limit int) ([]ScoredMessage, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.ticket_id, m.author_id, m.body, m.created_at, e.vector
		FROM message_embeddings e
		JOIN ticket_messages m ON m.id = e.message_id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: similar messages: %w", err)
	}
	defer rows.Close()

	var scored []ScoredMessage
	for rows.Next() {
		var m protocol.TicketMessage
		var createdAt, vecJSON string
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.Body, &createdAt, &vecJSON); err != nil {
			return nil, fmt.Errorf("store: scan embedding: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		var stored []float32
		if err := json.Unmarshal([]byte(vecJSON), &stored); err != nil {
			continue // skip corrupt vectors rather than failing the search
		}
		sim := cosine(vector, stored)
		if sim >= threshold {
			scored = append(scored, ScoredMessage{Message: m, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: similar messages: %w", err)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *SQLiteStore) MessagesMissingEmbedding(limit int) ([]protocol.TicketMessage, error) {
	query := `
		SELECT m.id, m.ticket_id, m.author_id, m.body, m.created_at
		FROM ticket_messages m
		LEFT JOIN message_embeddings e ON e.message_id = m.id
		WHERE e.message_id IS NULL
		ORDER BY m.created_at
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("store: messages missing embedding: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// cosine returns the cosine similarity of two vectors, 0 when either is
// zero-length or the dimensions disagree.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*protocol.User, error) {
	var u protocol.User
	var role, createdAt, updatedAt string
	var deletedAt *string

	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &role, &u.OrganizationID,
		&createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	u.Role = protocol.Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	u.DeletedAt = parseDeletedAt(deletedAt)
	return &u, nil
}

func scanOrganization(row scannable) (*protocol.Organization, error) {
	var o protocol.Organization
	var settingsJSON, createdAt, updatedAt string
	var deletedAt *string

	err := row.Scan(&o.ID, &o.Name, &settingsJSON, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(settingsJSON), &o.Settings)
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	o.DeletedAt = parseDeletedAt(deletedAt)
	return &o, nil
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, priority, createdAt, updatedAt string
	var deletedAt *string

	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &t.CustomerID,
		&t.AssigneeID, &t.OrganizationID, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	t.Status = protocol.TicketStatus(status)
	t.Priority = protocol.TicketPriority(priority)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	t.DeletedAt = parseDeletedAt(deletedAt)
	return &t, nil
}

func scanMessages(rows *sql.Rows) ([]protocol.TicketMessage, error) {
	var msgs []protocol.TicketMessage
	for rows.Next() {
		var m protocol.TicketMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func parseDeletedAt(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}
