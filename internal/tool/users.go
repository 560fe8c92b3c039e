package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// --- FindUsersTool ---

type FindUsersTool struct {
	Store store.Store
}

func (t *FindUsersTool) Name() string { return NameFindUsers }
func (t *FindUsersTool) Description() string {
	return "Find users by name, email, role, or organization; at least one criterion is required"
}

func (t *FindUsersTool) Parameters() map[string]any {
	return schema(map[string]any{
		"name":               prop("string", "case-insensitive substring of the user's full name"),
		"email":              prop("string", "exact email address, case-insensitive"),
		"role":               prop("string", fmt.Sprintf("one of %v", protocol.Roles())),
		"findOrganizationId": prop("string", "only members of this organization"),
	})
}

func (t *FindUsersTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	caller, _ := CallerFromContext(ctx)

	name := getString(input, "name")
	email := getString(input, "email")
	roleRaw := getString(input, "role")
	orgID := getString(input, "findOrganizationId")

	// Distinguish "no useful criteria" from "zero results": the former is
	// a contract violation, the latter a not-found.
	if name == "" && email == "" && roleRaw == "" && orgID == "" {
		return nil, &ValidationError{
			Tool:    NameFindUsers,
			Message: "at least one of name, email, role, or organization is required",
		}
	}

	filter := store.UserFilter{Email: email, OrganizationID: orgID}
	if roleRaw != "" {
		role := protocol.Role(roleRaw)
		if !role.Valid() {
			return nil, &ValidationError{
				Tool:    NameFindUsers,
				Message: fmt.Sprintf("invalid role %q, allowed: %v", roleRaw, protocol.Roles()),
			}
		}
		filter.Role = role
	}
	// Non-admin callers only ever see their own organization.
	if caller.Role != protocol.RoleAdmin && caller.OrganizationID != "" {
		filter.OrganizationID = caller.OrganizationID
	}

	users, err := t.Store.FindUsers(filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NameFindUsers, err)
	}

	// Name matching is a post-query case-insensitive substring filter on
	// the concatenated first and last name.
	if name != "" {
		needle := strings.ToLower(name)
		var matched []*protocol.User
		for _, u := range users {
			if strings.Contains(strings.ToLower(u.FullName()), needle) {
				matched = append(matched, u)
			}
		}
		users = matched
	}

	if len(users) == 0 {
		ref := email
		if ref == "" {
			ref = name
		}
		if ref == "" {
			ref = "matching criteria"
		}
		return nil, &NotFoundError{Tool: NameFindUsers, Resource: "user", Ref: ref}
	}
	return users, nil
}

// --- GetCurrentUserContextTool ---

type GetCurrentUserContextTool struct {
	Store store.Store
}

// UserContext bundles the caller's account with their organization.
type UserContext struct {
	User         *protocol.User         `json:"user"`
	Organization *protocol.Organization `json:"organization,omitempty"`
}

func (t *GetCurrentUserContextTool) Name() string { return NameGetCurrentUserContext }
func (t *GetCurrentUserContextTool) Description() string {
	return "Get the calling user's account and organization"
}

func (t *GetCurrentUserContextTool) Parameters() map[string]any {
	return schema(nil)
}

func (t *GetCurrentUserContextTool) Execute(ctx context.Context, _ map[string]any) (any, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok || caller.UserID == "" {
		return nil, &PermissionError{Tool: NameGetCurrentUserContext, RequiredRole: "authenticated"}
	}

	u, err := t.Store.GetUser(caller.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Tool: NameGetCurrentUserContext, Resource: "user", Ref: caller.UserID}
		}
		return nil, fmt.Errorf("%s: %w", NameGetCurrentUserContext, err)
	}

	uc := &UserContext{User: u}
	if u.OrganizationID != "" {
		if org, err := t.Store.GetOrganization(u.OrganizationID); err == nil {
			uc.Organization = org
		}
	}
	return uc, nil
}

// --- ManageUsersTool ---

type ManageUsersTool struct {
	Store store.Store
}

func (t *ManageUsersTool) Name() string { return NameManageUsers }
func (t *ManageUsersTool) Description() string {
	return "Create, update, or delete user accounts (admin only)"
}

func (t *ManageUsersTool) Parameters() map[string]any {
	return schema(map[string]any{
		"action": prop("string", "one of [create update delete]"),
		"userId": prop("string", "required for update and delete"),
		"userData": map[string]any{
			"type":        "object",
			"description": "account fields; create requires email and role",
			"properties": map[string]any{
				"email":          prop("string", "email address"),
				"role":           prop("string", fmt.Sprintf("one of %v", protocol.Roles())),
				"firstName":      prop("string", "given name"),
				"lastName":       prop("string", "family name"),
				"organizationId": prop("string", "organization to add the user to, default the caller's"),
			},
		},
	}, "action")
}

func (t *ManageUsersTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	caller, _ := CallerFromContext(ctx)
	if caller.Role != protocol.RoleAdmin {
		return nil, &PermissionError{Tool: NameManageUsers, RequiredRole: string(protocol.RoleAdmin)}
	}

	action := getString(input, "action")
	userID := getString(input, "userId")
	userData := getMap(input, "userData")

	switch action {
	case "create":
		return t.createUser(caller, userData)
	case "update":
		return t.updateUser(userID, userData)
	case "delete":
		if userID == "" {
			return nil, &ValidationError{Tool: NameManageUsers, MissingFields: []string{"userId"}}
		}
		if err := t.Store.DeleteUser(userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &NotFoundError{Tool: NameManageUsers, Resource: "user", Ref: userID}
			}
			return nil, fmt.Errorf("%s: %w", NameManageUsers, err)
		}
		return map[string]any{"deleted": userID}, nil
	default:
		return nil, &ValidationError{
			Tool:    NameManageUsers,
			Message: fmt.Sprintf("invalid action %q, allowed: [create update delete]", action),
		}
	}
}

func (t *ManageUsersTool) createUser(caller protocol.Caller, userData map[string]any) (any, error) {
	email := getString(userData, "email")
	roleRaw := getString(userData, "role")

	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if roleRaw == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Tool: NameManageUsers, MissingFields: missing}
	}

	role := protocol.Role(roleRaw)
	if !role.Valid() {
		return nil, &ValidationError{
			Tool:    NameManageUsers,
			Message: fmt.Sprintf("invalid role %q, allowed: %v", roleRaw, protocol.Roles()),
		}
	}

	orgID := getString(userData, "organizationId")
	if orgID == "" {
		orgID = caller.OrganizationID
	}

	u := &protocol.User{
		ID:             uuid.NewString(),
		Email:          email,
		FirstName:      getString(userData, "firstName"),
		LastName:       getString(userData, "lastName"),
		Role:           role,
		OrganizationID: orgID,
	}
	if err := t.Store.CreateUser(u); err != nil {
		return nil, fmt.Errorf("%s: %w", NameManageUsers, err)
	}
	if orgID != "" {
		if err := t.Store.AddMember(protocol.OrganizationMember{
			OrganizationID: orgID,
			UserID:         u.ID,
			Role:           role,
		}); err != nil {
			return nil, fmt.Errorf("%s: %w", NameManageUsers, err)
		}
	}
	return u, nil
}

func (t *ManageUsersTool) updateUser(userID string, userData map[string]any) (any, error) {
	if userID == "" {
		return nil, &ValidationError{Tool: NameManageUsers, MissingFields: []string{"userId"}}
	}
	if len(userData) == 0 {
		return nil, &ValidationError{Tool: NameManageUsers, Message: "no userData provided"}
	}

	var upd store.UserUpdate
	if v, ok := userData["email"].(string); ok {
		upd.Email = &v
	}
	if v, ok := userData["firstName"].(string); ok {
		upd.FirstName = &v
	}
	if v, ok := userData["lastName"].(string); ok {
		upd.LastName = &v
	}
	if v, ok := userData["role"].(string); ok {
		role := protocol.Role(v)
		if !role.Valid() {
			return nil, &ValidationError{
				Tool:    NameManageUsers,
				Message: fmt.Sprintf("invalid role %q, allowed: %v", v, protocol.Roles()),
			}
		}
		upd.Role = &role
	}

	u, err := t.Store.UpdateUser(userID, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Tool: NameManageUsers, Resource: "user", Ref: userID}
		}
		return nil, fmt.Errorf("%s: %w", NameManageUsers, err)
	}
	return u, nil
}
