package tool

import (
	"context"

	"github.com/deskd-io/deskd/pkg/protocol"
)

// DefaultSystemInfo returns the desk's identity block. It is computed once
// at startup and never changes.
func DefaultSystemInfo(version string) protocol.SystemInfo {
	return protocol.SystemInfo{
		Name:        "Sage",
		Description: "Sage is the deskd AI support assistant. It answers questions about tickets, users, and organizations on behalf of the help desk.",
		Version:     version,
		Capabilities: []string{
			"search and filter support tickets",
			"show a ticket with its full message thread",
			"create tickets for customers",
			"update ticket status, priority, and assignment",
			"look up users by name, email, or role",
			"find ticket messages similar to a given text",
			"manage organizations and user accounts (admins)",
		},
	}
}

// GetSystemInfoTool returns the static identity block. No external calls,
// identical output on every invocation.
type GetSystemInfoTool struct {
	Info protocol.SystemInfo
}

func (t *GetSystemInfoTool) Name() string        { return NameGetSystemInfo }
func (t *GetSystemInfoTool) Description() string { return "Describe the assistant and its capabilities" }

func (t *GetSystemInfoTool) Parameters() map[string]any { return schema(nil) }

func (t *GetSystemInfoTool) Execute(_ context.Context, _ map[string]any) (any, error) {
	return t.Info, nil
}
