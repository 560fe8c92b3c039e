package tool

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

var (
	adminCaller = protocol.Caller{UserID: "u-admin", Role: protocol.RoleAdmin, OrganizationID: "org-1"}
	agentCaller = protocol.Caller{UserID: "u-agent", Role: protocol.RoleAgent, OrganizationID: "org-1"}
	custCaller  = protocol.Caller{UserID: "u-carol", Role: protocol.RoleCustomer, OrganizationID: "org-1"}
)

// newStore opens a fresh SQLite store seeded with two organizations and a
// user of each role.
func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "desk.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	for _, org := range []*protocol.Organization{
		{ID: "org-1", Name: "Acme"},
		{ID: "org-2", Name: "Globex"},
	} {
		if err := st.CreateOrganization(org); err != nil {
			t.Fatalf("seed org %s: %v", org.ID, err)
		}
	}
	for _, u := range []*protocol.User{
		{ID: "u-admin", Email: "admin@acme.test", FirstName: "Ada", LastName: "Admin", Role: protocol.RoleAdmin, OrganizationID: "org-1"},
		{ID: "u-agent", Email: "agent@acme.test", FirstName: "Abe", LastName: "Agent", Role: protocol.RoleAgent, OrganizationID: "org-1"},
		{ID: "u-carol", Email: "Carol@Example.com", FirstName: "Carol", LastName: "Customer", Role: protocol.RoleCustomer, OrganizationID: "org-1"},
		{ID: "u-dave", Email: "dave@globex.test", FirstName: "Dave", LastName: "Distant", Role: protocol.RoleCustomer, OrganizationID: "org-2"},
	} {
		if err := st.CreateUser(u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return st
}

func newRegistry(t *testing.T) (*Registry, *store.SQLiteStore) {
	t.Helper()
	st := newStore(t)
	return NewRegistry(Deps{Store: st, Info: DefaultSystemInfo("test")}), st
}

func TestRegistryNames(t *testing.T) {
	reg, _ := newRegistry(t)
	want := []string{
		NameCreateTicket, NameFindSimilarMessages, NameFindUsers,
		NameGetCurrentUserContext, NameGetSystemInfo, NameGetTicketDetails,
		NameManageUsers, NameSearchTickets, NameUpdateOrganization,
		NameUpdateTicket,
	}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	for _, name := range want {
		if !reg.Has(name) {
			t.Errorf("Has(%q) = false", name)
		}
	}
}

func TestRegistrySpecs(t *testing.T) {
	reg, _ := newRegistry(t)
	specs := reg.Specs()
	if len(specs) != 10 {
		t.Fatalf("specs = %d, want 10", len(specs))
	}
	for _, s := range specs {
		if s.Description == "" {
			t.Errorf("tool %q has no description", s.Name)
		}
		if s.Parameters == nil {
			t.Errorf("tool %q has no input schema", s.Name)
		}
	}
}

func TestRegistrySpecs_InputContracts(t *testing.T) {
	reg, _ := newRegistry(t)
	specs := make(map[string]Spec)
	for _, s := range reg.Specs() {
		specs[s.Name] = s
	}

	// Every key a tool reads must be discoverable from its schema.
	tests := []struct {
		tool string
		keys []string
	}{
		{NameSearchTickets, []string{"status", "priority", "assigneeId", "customerId", "unassigned", "createdAfter", "createdBefore", "updatedAfter", "updatedBefore", "limit"}},
		{NameGetTicketDetails, []string{"ticketId"}},
		{NameCreateTicket, []string{"title", "description", "customerId", "priority", "status", "assigneeId", "ticketOrganizationId"}},
		{NameUpdateTicket, []string{"ticketId", "updates"}},
		{NameFindUsers, []string{"name", "email", "role", "findOrganizationId"}},
		{NameFindSimilarMessages, []string{"text"}},
		{NameUpdateOrganization, []string{"targetOrganizationId", "updates"}},
		{NameManageUsers, []string{"action", "userId", "userData"}},
	}
	for _, tt := range tests {
		props, ok := specs[tt.tool].Parameters["properties"].(map[string]any)
		if !ok {
			t.Errorf("%s: schema has no properties object", tt.tool)
			continue
		}
		for _, key := range tt.keys {
			if _, ok := props[key]; !ok {
				t.Errorf("%s: schema does not declare input key %q", tt.tool, key)
			}
		}
	}

	required, _ := specs[NameCreateTicket].Parameters["required"].([]string)
	if len(required) != 3 {
		t.Errorf("createTicket required = %v, want title, description, customerId", required)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Dispatch(context.Background(), adminCaller, "dropDatabase", nil)
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want *UnknownToolError", err)
	}
	if unknown.Name != "dropDatabase" {
		t.Errorf("name = %q", unknown.Name)
	}
}

func TestDispatch_FoldsToolErrors(t *testing.T) {
	reg, _ := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), adminCaller, NameFindUsers, map[string]any{})
	if err != nil {
		t.Fatalf("tool failures must fold into the envelope, got err %v", err)
	}
	if res.Success {
		t.Fatal("expected a failed result")
	}
	if !strings.Contains(res.Error, "at least one of") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestDispatch_RejectsReservedKeys(t *testing.T) {
	reg, _ := newRegistry(t)
	for _, key := range []string{"callerId", "callerRole", "organizationId"} {
		res, err := reg.Dispatch(context.Background(), adminCaller, NameSearchTickets,
			map[string]any{key: "org-2"})
		if err != nil {
			t.Fatalf("%s: reserved keys must fold into the envelope, got err %v", key, err)
		}
		if res.Success {
			t.Errorf("%s: expected a failed result, not a silently rescoped query", key)
		}
		if !strings.Contains(res.Error, "reserved") {
			t.Errorf("%s: error = %q", key, res.Error)
		}
	}
}

func TestDispatch_InjectsCaller(t *testing.T) {
	reg, st := newRegistry(t)
	for _, tk := range []*protocol.Ticket{
		{ID: "t-own", Title: "Mine", Description: "d", Status: protocol.TicketOpen,
			Priority: protocol.PriorityLow, CustomerID: "u-carol", OrganizationID: "org-1"},
		{ID: "t-other", Title: "Not mine", Description: "d", Status: protocol.TicketOpen,
			Priority: protocol.PriorityLow, CustomerID: "u-dave", OrganizationID: "org-2"},
	} {
		if err := st.CreateTicket(tk); err != nil {
			t.Fatalf("seed ticket: %v", err)
		}
	}

	// No customerId in the input: scoping comes from the injected caller.
	res, err := reg.Dispatch(context.Background(), custCaller, NameSearchTickets, map[string]any{})
	if err != nil || !res.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, res)
	}
	tickets := res.Data.([]*protocol.Ticket)
	if len(tickets) != 1 || tickets[0].ID != "t-own" {
		t.Errorf("customer sees %d tickets, want only their own", len(tickets))
	}
}

func TestGetCurrentUserContext(t *testing.T) {
	reg, _ := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), custCaller, NameGetCurrentUserContext, nil)
	if err != nil || !res.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, res)
	}
	uc := res.Data.(*UserContext)
	if uc.User.ID != "u-carol" {
		t.Errorf("user = %q", uc.User.ID)
	}
	if uc.Organization == nil || uc.Organization.Name != "Acme" {
		t.Errorf("organization = %+v", uc.Organization)
	}
}

func TestGetSystemInfo_Idempotent(t *testing.T) {
	reg, _ := newRegistry(t)
	first, err := reg.Dispatch(context.Background(), custCaller, NameGetSystemInfo, nil)
	if err != nil || !first.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, first)
	}
	second, err := reg.Dispatch(context.Background(), adminCaller, NameGetSystemInfo, map[string]any{"ignored": true})
	if err != nil || !second.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, second)
	}
	if !reflect.DeepEqual(first.Data, second.Data) {
		t.Error("system info must be identical on every invocation")
	}
	if info := first.Data.(protocol.SystemInfo); info.Name != "Sage" {
		t.Errorf("name = %q", info.Name)
	}
}
