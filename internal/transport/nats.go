// Package transport exposes the orchestrator over NATS request/reply so
// other services can submit desk queries without going through HTTP.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/deskd-io/deskd/internal/agent"
	"github.com/deskd-io/deskd/internal/identity"
	"github.com/deskd-io/deskd/internal/memory"
	"github.com/deskd-io/deskd/pkg/protocol"
)

const requestTimeout = 2 * time.Minute

// ChatService is the orchestrator surface the transport needs.
type ChatService interface {
	Process(ctx context.Context, caller protocol.Caller, query string, history []protocol.ChatMessage) (*agent.Result, error)
}

// QueryRequest is the wire format for a desk query.
type QueryRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
}

// QueryReply is the wire format for a reply.
type QueryReply struct {
	Response string `json:"response"`
	Intent   string `json:"intent,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Server subscribes to a subject and answers desk queries.
type Server struct {
	conn     *nats.Conn
	subject  string
	chat     ChatService
	identity identity.Resolver
	memory   memory.Store
	logger   *slog.Logger
	sub      *nats.Subscription
}

// NewServer connects to NATS. The subscription starts with Start.
func NewServer(url, subject string, chat ChatService, ident identity.Resolver, mem memory.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: connect %s: %w", url, err)
	}
	return &Server{
		conn:     conn,
		subject:  subject,
		chat:     chat,
		identity: ident,
		memory:   mem,
		logger:   logger,
	}, nil
}

// Start subscribes and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		go s.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info("nats transport started", "subject", s.subject)

	<-ctx.Done()
	s.sub.Unsubscribe()
	s.conn.Drain()
	s.logger.Info("nats transport stopped")
	return nil
}

func (s *Server) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var req QueryRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.reply(msg, QueryReply{Error: "invalid request JSON"})
		return
	}
	reply := s.Answer(ctx, req)
	s.reply(msg, reply)
}

// Answer resolves the caller, runs the query with its session history, and
// records the exchange. Split from handle so it is testable without a
// broker.
func (s *Server) Answer(ctx context.Context, req QueryRequest) QueryReply {
	if req.UserID == "" || req.Query == "" {
		return QueryReply{Error: "user_id and query are required"}
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.UserID
	}

	caller, err := s.identity.Resolve(req.UserID)
	if err != nil {
		s.logger.Warn("unknown user on nats", "user", req.UserID)
		return QueryReply{Error: "unknown user"}
	}

	history, err := s.memory.History(ctx, sessionID)
	if err != nil {
		s.logger.Warn("history unavailable", "session", sessionID, "error", err)
	}

	result, err := s.chat.Process(ctx, caller, req.Query, history)
	if err != nil {
		s.logger.Error("nats query failed", "user", req.UserID, "error", err)
		return QueryReply{Error: "processing failed"}
	}

	if err := s.memory.Append(ctx, sessionID,
		protocol.ChatMessage{Role: "user", Content: req.Query},
		protocol.ChatMessage{Role: "assistant", Content: result.Response},
	); err != nil {
		s.logger.Warn("history not saved", "session", sessionID, "error", err)
	}

	reply := QueryReply{Response: result.Response}
	if result.State.Analysis != nil {
		reply.Intent = string(result.State.Analysis.Intent)
	}
	return reply
}

func (s *Server) reply(msg *nats.Msg, r QueryReply) {
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("marshal reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("respond failed", "error", err)
	}
}

// Close releases the NATS connection without draining.
func (s *Server) Close() {
	s.conn.Close()
}
