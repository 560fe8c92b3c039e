package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/deskd-io/deskd/internal/store"
	"github.com/deskd-io/deskd/pkg/protocol"
)

type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("embed service down")
	}
	return []float32{1, 0, 0}, nil
}

func newBackfillStore(t *testing.T, messages int) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.CreateUser(&protocol.User{ID: "u-1", Email: "c@example.com", Role: protocol.RoleCustomer}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := st.CreateTicket(&protocol.Ticket{
		ID: "t1", Title: "Printer down", Description: "no output",
		Status: protocol.TicketOpen, Priority: protocol.PriorityLow, CustomerID: "u-1",
	}); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	for i := range messages {
		if err := st.AppendTicketMessage(protocol.TicketMessage{
			ID: fmt.Sprintf("m%d", i), TicketID: "t1", AuthorID: "u-1", Body: fmt.Sprintf("message %d", i),
		}); err != nil {
			t.Fatalf("AppendTicketMessage: %v", err)
		}
	}
	return st
}

func TestBackfillRun(t *testing.T) {
	st := newBackfillStore(t, 3)
	emb := &fakeEmbedder{}
	b := &Backfill{Store: st, Embedder: emb}

	b.Run(context.Background())

	if emb.calls != 3 {
		t.Errorf("embed calls = %d, want 3", emb.calls)
	}
	pending, err := st.MessagesMissingEmbedding(10)
	if err != nil {
		t.Fatalf("MessagesMissingEmbedding: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after run = %d, want 0", len(pending))
	}
}

func TestBackfillRun_EmbedFailureLeavesPending(t *testing.T) {
	st := newBackfillStore(t, 2)
	b := &Backfill{Store: st, Embedder: &fakeEmbedder{fail: true}}

	b.Run(context.Background())

	pending, err := st.MessagesMissingEmbedding(10)
	if err != nil {
		t.Fatalf("MessagesMissingEmbedding: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2 (retried next run)", len(pending))
	}
}

func TestBackfillRun_NothingPending(t *testing.T) {
	st := newBackfillStore(t, 0)
	emb := &fakeEmbedder{}
	b := &Backfill{Store: st, Embedder: emb}

	b.Run(context.Background())

	if emb.calls != 0 {
		t.Errorf("embed calls = %d, want 0", emb.calls)
	}
}
