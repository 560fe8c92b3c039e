package connector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/deskd-io/deskd/internal/agent"
	"github.com/deskd-io/deskd/internal/identity"
	"github.com/deskd-io/deskd/internal/memory"
	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

type mockChat struct {
	response   string
	calls      int
	lastCaller protocol.Caller
	lastHist   []protocol.ChatMessage
}

func (m *mockChat) Process(_ context.Context, caller protocol.Caller, query string, history []protocol.ChatMessage) (*agent.Result, error) {
	m.calls++
	m.lastCaller = caller
	m.lastHist = history
	return &agent.Result{Response: m.response, State: &agent.State{Query: query}}, nil
}

func newTestRouter(t *testing.T) (*Router, *mockChat) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.CreateUser(&protocol.User{ID: "u-alice", Email: "alice@example.com", Role: protocol.RoleAgent}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	chat := &mockChat{response: "Done."}
	r := &Router{
		Chat:     chat,
		Identity: identity.NewStoreResolver(st),
		Memory:   memory.NewInMemoryStore(),
		Users:    map[string]string{"tg-100": "u-alice"},
	}
	return r, chat
}

func TestRouterHandle(t *testing.T) {
	r, chat := newTestRouter(t)

	reply, err := r.Handle(context.Background(), InboundMessage{
		Channel: "telegram", SenderID: "tg-100", ChatID: "chat-1", Content: "show my tickets",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != "Done." {
		t.Errorf("reply = %q", reply)
	}
	if chat.lastCaller.UserID != "u-alice" || chat.lastCaller.Role != protocol.RoleAgent {
		t.Errorf("caller = %+v", chat.lastCaller)
	}
}

func TestRouterHandle_UnmappedSender(t *testing.T) {
	r, chat := newTestRouter(t)

	_, err := r.Handle(context.Background(), InboundMessage{
		Channel: "telegram", SenderID: "tg-999", ChatID: "chat-1", Content: "hi",
	})
	if err == nil {
		t.Fatal("expected error for unmapped sender")
	}
	if chat.calls != 0 {
		t.Errorf("chat calls = %d, want 0", chat.calls)
	}
}

func TestRouterHandle_SessionsScopedPerChat(t *testing.T) {
	r, chat := newTestRouter(t)

	r.Handle(context.Background(), InboundMessage{Channel: "telegram", SenderID: "tg-100", ChatID: "chat-1", Content: "first"})
	r.Handle(context.Background(), InboundMessage{Channel: "telegram", SenderID: "tg-100", ChatID: "chat-2", Content: "second"})

	// Different chat, fresh history.
	if len(chat.lastHist) != 0 {
		t.Errorf("history in chat-2 = %d messages, want 0", len(chat.lastHist))
	}

	r.Handle(context.Background(), InboundMessage{Channel: "telegram", SenderID: "tg-100", ChatID: "chat-1", Content: "third"})
	if len(chat.lastHist) != 2 {
		t.Errorf("history in chat-1 = %d messages, want 2", len(chat.lastHist))
	}
}

func TestRouterClearSession(t *testing.T) {
	r, chat := newTestRouter(t)

	r.Handle(context.Background(), InboundMessage{Channel: "telegram", SenderID: "tg-100", ChatID: "chat-1", Content: "first"})
	if err := r.ClearSession(context.Background(), "telegram", "chat-1"); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	r.Handle(context.Background(), InboundMessage{Channel: "telegram", SenderID: "tg-100", ChatID: "chat-1", Content: "second"})

	if len(chat.lastHist) != 0 {
		t.Errorf("history after clear = %d messages, want 0", len(chat.lastHist))
	}
}
