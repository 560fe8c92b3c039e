package tool

import (
	"context"
	"strings"
	"testing"

	"github.com/deskd-io/deskd/pkg/protocol"
)

func TestFindUsers_EmailCaseInsensitive(t *testing.T) {
	reg, _ := newRegistry(t)
	// Seeded as Carol@Example.com; queried all-lowercase.
	res, err := reg.Dispatch(context.Background(), adminCaller, NameFindUsers, map[string]any{
		"email": "carol@example.com",
	})
	if err != nil || !res.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, res)
	}
	users := res.Data.([]*protocol.User)
	if len(users) != 1 || users[0].ID != "u-carol" {
		t.Errorf("users = %+v", users)
	}
}

func TestFindUsers_NameSubstring(t *testing.T) {
	reg, _ := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), adminCaller, NameFindUsers, map[string]any{
		"name": "caro",
	})
	if err != nil || !res.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, res)
	}
	users := res.Data.([]*protocol.User)
	if len(users) != 1 || users[0].FirstName != "Carol" {
		t.Errorf("users = %+v", users)
	}
}

func TestFindUsers_NotFound(t *testing.T) {
	reg, _ := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), adminCaller, NameFindUsers, map[string]any{
		"email": "ghost@example.com",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Success {
		t.Fatal("expected not-found failure, never an invented user")
	}
	if !strings.Contains(res.Error, "ghost@example.com") {
		t.Errorf("error should name the ref: %q", res.Error)
	}
}

func TestFindUsers_NonAdminScopedToOrg(t *testing.T) {
	reg, _ := newRegistry(t)
	// u-dave is a customer in org-2; an org-1 agent must not see them.
	res, err := reg.Dispatch(context.Background(), agentCaller, NameFindUsers, map[string]any{
		"role": "customer",
	})
	if err != nil || !res.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, res)
	}
	for _, u := range res.Data.([]*protocol.User) {
		if u.OrganizationID != "org-1" {
			t.Errorf("agent saw user %s from %s", u.ID, u.OrganizationID)
		}
	}
}

func TestFindUsers_InvalidRole(t *testing.T) {
	reg, _ := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), adminCaller, NameFindUsers, map[string]any{
		"role": "superuser",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "invalid role") {
		t.Errorf("res = %+v", res)
	}
}

func TestManageUsers_AdminOnly(t *testing.T) {
	reg, _ := newRegistry(t)
	for _, caller := range []protocol.Caller{agentCaller, custCaller} {
		res, err := reg.Dispatch(context.Background(), caller, NameManageUsers, map[string]any{
			"action": "delete", "userId": "u-dave",
		})
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		if res.Success || !strings.Contains(res.Error, "permission denied") {
			t.Errorf("role %s: res = %+v", caller.Role, res)
		}
	}
}

func TestManageUsers_CreateRequiresEmailAndRole(t *testing.T) {
	reg, _ := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), adminCaller, NameManageUsers, map[string]any{
		"action": "create", "userData": map[string]any{"firstName": "Eve"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "email, role") {
		t.Errorf("res = %+v", res)
	}
}

func TestManageUsers_CreateAddsMember(t *testing.T) {
	reg, st := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), adminCaller, NameManageUsers, map[string]any{
		"action": "create",
		"userData": map[string]any{
			"email": "eve@acme.test", "role": "agent",
			"firstName": "Eve", "lastName": "Engineer",
		},
	})
	if err != nil || !res.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, res)
	}
	created := res.Data.(*protocol.User)
	if created.OrganizationID != "org-1" {
		t.Errorf("organization = %q, want the caller's", created.OrganizationID)
	}

	members, err := st.ListMembers("org-1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	var found bool
	for _, m := range members {
		if m.UserID == created.ID && m.Role == protocol.RoleAgent {
			found = true
		}
	}
	if !found {
		t.Error("created user not added as organization member")
	}
}

func TestManageUsers_Delete(t *testing.T) {
	reg, st := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), adminCaller, NameManageUsers, map[string]any{
		"action": "delete", "userId": "u-dave",
	})
	if err != nil || !res.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, res)
	}
	if _, err := st.GetUser("u-dave"); err == nil {
		t.Error("deleted user still readable")
	}
}

func TestUpdateOrganization_AdminOnly(t *testing.T) {
	reg, _ := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), agentCaller, NameUpdateOrganization, map[string]any{
		"updates": map[string]any{"name": "Acme Corp"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.Success || !strings.Contains(res.Error, "permission denied") {
		t.Errorf("res = %+v", res)
	}
}

func TestUpdateOrganization_TogglesSetting(t *testing.T) {
	reg, st := newRegistry(t)
	res, err := reg.Dispatch(context.Background(), adminCaller, NameUpdateOrganization, map[string]any{
		"updates": map[string]any{"customersCanEditTickets": true},
	})
	if err != nil || !res.Success {
		t.Fatalf("dispatch: err=%v res=%+v", err, res)
	}
	org, err := st.GetOrganization("org-1")
	if err != nil {
		t.Fatalf("get org: %v", err)
	}
	if !org.Settings.CustomersCanEditTickets {
		t.Error("setting not persisted")
	}
}
