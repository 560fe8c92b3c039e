package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// UpdateOrganizationTool changes an organization's name or settings.
// Admin only; the check runs here regardless of what the plan claimed.
type UpdateOrganizationTool struct {
	Store store.Store
}

func (t *UpdateOrganizationTool) Name() string { return NameUpdateOrganization }
func (t *UpdateOrganizationTool) Description() string {
	return "Update an organization's name or settings (admin only)"
}

func (t *UpdateOrganizationTool) Parameters() map[string]any {
	return schema(map[string]any{
		"targetOrganizationId": prop("string", "organization to change, default the caller's"),
		"updates": map[string]any{
			"type":        "object",
			"description": "fields to change",
			"properties": map[string]any{
				"name":                    prop("string", "new organization name"),
				"customersCanEditTickets": prop("boolean", "whether customers may edit their own tickets"),
			},
		},
	}, "updates")
}

func (t *UpdateOrganizationTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	caller, _ := CallerFromContext(ctx)
	if caller.Role != protocol.RoleAdmin {
		return nil, &PermissionError{Tool: NameUpdateOrganization, RequiredRole: string(protocol.RoleAdmin)}
	}

	orgID := getString(input, "targetOrganizationId")
	if orgID == "" {
		orgID = caller.OrganizationID
	}
	if orgID == "" {
		return nil, &ValidationError{Tool: NameUpdateOrganization, MissingFields: []string{"targetOrganizationId"}}
	}
	updates := getMap(input, "updates")
	if len(updates) == 0 {
		return nil, &ValidationError{Tool: NameUpdateOrganization, Message: "no updates provided"}
	}

	var upd store.OrgUpdate
	if v, ok := updates["name"].(string); ok {
		upd.Name = &v
	}
	if v, ok := updates["customersCanEditTickets"].(bool); ok {
		org, err := t.Store.GetOrganization(orgID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &NotFoundError{Tool: NameUpdateOrganization, Resource: "organization", Ref: orgID}
			}
			return nil, fmt.Errorf("%s: %w", NameUpdateOrganization, err)
		}
		settings := org.Settings
		settings.CustomersCanEditTickets = v
		upd.Settings = &settings
	}

	org, err := t.Store.UpdateOrganization(orgID, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Tool: NameUpdateOrganization, Resource: "organization", Ref: orgID}
		}
		return nil, fmt.Errorf("%s: %w", NameUpdateOrganization, err)
	}
	return org, nil
}
