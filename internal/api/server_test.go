package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deskd-io/deskd/internal/agent"
	"github.com/deskd-io/deskd/internal/identity"
	"github.com/deskd-io/deskd/internal/logbuf"
	"github.com/deskd-io/deskd/internal/memory"
	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

// mockChat implements ChatService with a canned reply.
type mockChat struct {
	response string
	calls    int
	lastHist []protocol.ChatMessage
}

func (m *mockChat) Process(_ context.Context, _ protocol.Caller, query string, history []protocol.ChatMessage) (*agent.Result, error) {
	m.calls++
	m.lastHist = history
	return &agent.Result{
		Response: m.response,
		State: &agent.State{
			Query:    query,
			Analysis: &agent.IntentAnalysis{Intent: agent.IntentSearch},
		},
	}, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return st
}

func newTestServer(t *testing.T, chat ChatService, st *store.SQLiteStore, key string) *Server {
	t.Helper()
	if st == nil {
		st = newTestStore(t)
	}
	return NewServer(chat, identity.NewStoreResolver(st), memory.NewInMemoryStore(), st,
		Config{Host: "127.0.0.1", Port: 0, Key: key}, nil, nil)
}

func seedUser(t *testing.T, st *store.SQLiteStore, id string, role protocol.Role) {
	t.Helper()
	if err := st.CreateUser(&protocol.User{ID: id, Email: id + "@example.com", Role: role}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "")
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestChat(t *testing.T) {
	st := newTestStore(t)
	seedUser(t, st, "u-1", protocol.RoleAgent)
	chat := &mockChat{response: "Found 3 open tickets."}
	srv := newTestServer(t, chat, st, "")

	body := `{"user_id":"u-1","query":"show open tickets"}`
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp chatResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Response != "Found 3 open tickets." {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.Intent != "SEARCH" {
		t.Errorf("intent = %q", resp.Intent)
	}
	if resp.SessionID != "u-1" {
		t.Errorf("session_id = %q", resp.SessionID)
	}
	if chat.calls != 1 {
		t.Errorf("chat calls = %d", chat.calls)
	}
}

func TestChat_HistoryCarriesOver(t *testing.T) {
	st := newTestStore(t)
	seedUser(t, st, "u-1", protocol.RoleAgent)
	chat := &mockChat{response: "ok"}
	srv := newTestServer(t, chat, st, "")

	for range 2 {
		body := `{"user_id":"u-1","query":"hello"}`
		req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}

	// Second call should see the first exchange in its history.
	if len(chat.lastHist) != 2 {
		t.Errorf("history length on second call = %d, want 2", len(chat.lastHist))
	}
}

func TestChat_UnknownUser(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "")
	body := `{"user_id":"ghost","query":"hi"}`
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestChat_EmptyQuery(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "")
	body := `{"user_id":"u-1","query":"  "}`
	req := httptest.NewRequest("POST", "/api/chat", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListTickets(t *testing.T) {
	st := newTestStore(t)
	seedUser(t, st, "u-1", protocol.RoleCustomer)
	if err := st.CreateTicket(&protocol.Ticket{
		ID: "t1", Title: "Printer down", Description: "no output",
		Status: protocol.TicketOpen, Priority: protocol.PriorityHigh, CustomerID: "u-1",
	}); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	srv := newTestServer(t, &mockChat{}, st, "")

	req := httptest.NewRequest("GET", "/api/tickets?status=open&limit=10", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var tickets []*protocol.Ticket
	json.NewDecoder(w.Body).Decode(&tickets)
	if len(tickets) != 1 || tickets[0].ID != "t1" {
		t.Errorf("tickets = %+v", tickets)
	}
}

func TestListTickets_InvalidStatus(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "")
	req := httptest.NewRequest("GET", "/api/tickets?status=bogus", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetTicket(t *testing.T) {
	st := newTestStore(t)
	seedUser(t, st, "u-1", protocol.RoleCustomer)
	if err := st.CreateTicket(&protocol.Ticket{
		ID: "t1", Title: "Printer down", Description: "no output",
		Status: protocol.TicketOpen, Priority: protocol.PriorityLow, CustomerID: "u-1",
	}); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	srv := newTestServer(t, &mockChat{}, st, "")

	req := httptest.NewRequest("GET", "/api/tickets/t1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetTicket_NotFound(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "")
	req := httptest.NewRequest("GET", "/api/tickets/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetLogs_FilterByComponent(t *testing.T) {
	buf := logbuf.New(10)
	logger := slog.New(logbuf.NewHandler(slog.NewTextHandler(io.Discard, nil), buf))
	logger.With("component", "agent").Info("request handled", "intent", "SEARCH")
	logger.With("component", "api").Info("api server started")

	srv := newTestServer(t, &mockChat{}, nil, "")
	srv.logs = buf

	req := httptest.NewRequest("GET", "/api/logs?component=agent", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var entries []logbuf.Entry
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Component != "agent" || entries[0].Message != "request handled" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestGetLogs_NoBufferIsEmpty(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "")
	req := httptest.NewRequest("GET", "/api/logs", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty array", body)
	}
}

func TestAuth_Required(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "secret-key")

	// No auth header
	req := httptest.NewRequest("GET", "/api/tickets", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", w.Code)
	}

	// Wrong key
	req = httptest.NewRequest("GET", "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", w.Code)
	}

	// Correct key
	req = httptest.NewRequest("GET", "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", w.Code)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "secret-key")
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	// Health should NOT require auth
	if w.Code != http.StatusOK {
		t.Errorf("health should not require auth, status = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, &mockChat{}, nil, "")
	req := httptest.NewRequest("OPTIONS", "/api/tickets", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}
}
