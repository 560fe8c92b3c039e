package identity

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "desk.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestResolve(t *testing.T) {
	st := newTestStore(t)
	if err := st.CreateUser(&protocol.User{
		ID: "u-1", Email: "agent@acme.test", Role: protocol.RoleAgent, OrganizationID: "org-1",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	caller, err := NewStoreResolver(st).Resolve("u-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if caller.UserID != "u-1" || caller.Role != protocol.RoleAgent || caller.OrganizationID != "org-1" {
		t.Errorf("caller = %+v", caller)
	}
}

func TestResolve_UnknownUser(t *testing.T) {
	st := newTestStore(t)
	_, err := NewStoreResolver(st).Resolve("u-ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve_DeletedUser(t *testing.T) {
	st := newTestStore(t)
	if err := st.CreateUser(&protocol.User{ID: "u-1", Email: "x@x.test", Role: protocol.RoleCustomer}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.DeleteUser("u-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := NewStoreResolver(st).Resolve("u-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for soft-deleted user", err)
	}
}
