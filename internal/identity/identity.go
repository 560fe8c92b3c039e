// Package identity resolves an authenticated user id into the caller
// context (role + organization) that every tool call runs under. The agent
// trusts this layer as ground truth and never re-derives identity from
// model output.
package identity

import (
	"fmt"

	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// Resolver derives a Caller from an authenticated user id.
type Resolver interface {
	Resolve(userID string) (protocol.Caller, error)
}

// StoreResolver resolves identity against the data store.
type StoreResolver struct {
	Store store.Store
}

// NewStoreResolver creates a store-backed identity resolver.
func NewStoreResolver(s store.Store) *StoreResolver {
	return &StoreResolver{Store: s}
}

// Resolve loads the user and returns the caller context. An unknown or
// soft-deleted user is an error; requests never proceed anonymously.
func (r *StoreResolver) Resolve(userID string) (protocol.Caller, error) {
	u, err := r.Store.GetUser(userID)
	if err != nil {
		return protocol.Caller{}, fmt.Errorf("identity: resolve %q: %w", userID, err)
	}
	return protocol.Caller{
		UserID:         u.ID,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
	}, nil
}
