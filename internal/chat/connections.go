package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/genie/internal/types"
	"github.com/user/genie/pkg/llm"
)

// TokenCounter estimates the prompt size of a message history.
type TokenCounter interface {
	CountMessages(messages []types.Message) int
}

type connection struct {
	conv    llm.Conversation
	modelID string
	valid   bool
}

// ConnectionManager owns the live backend conversations, keyed by session id.
// Connections are runtime-only; they are rebuilt from message history when
// missing, invalidated, or bound to a different model.
type ConnectionManager struct {
	backend llm.Backend
	counter TokenCounter
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[types.SessionID]*connection
}

// NewConnectionManager creates a manager that opens conversations on backend.
// counter may be nil.
func NewConnectionManager(backend llm.Backend, counter TokenCounter, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		backend: backend,
		counter: counter,
		logger:  logger,
		conns:   make(map[types.SessionID]*connection),
	}
}

// GetOrCreate returns the live conversation for session, creating it from the
// session's messages and model when there is no valid one.
func (m *ConnectionManager) GetOrCreate(ctx context.Context, session types.ChatSession) (llm.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[session.ID]; ok && c.valid && c.modelID == session.ModelID {
		return c.conv, nil
	}

	history := historyTurns(session.Messages)
	attrs := []any{"session_id", session.ID, "model", session.ModelID, "turns", len(history)}
	if m.counter != nil {
		attrs = append(attrs, "tokens", m.counter.CountMessages(session.Messages))
	}
	m.logger.Debug("building live connection", attrs...)

	conv, err := m.backend.CreateConversation(ctx, session.ModelID, history)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	m.conns[session.ID] = &connection{conv: conv, modelID: session.ModelID, valid: true}
	return conv, nil
}

// Invalidate marks the session's connection stale so the next GetOrCreate rebuilds it.
func (m *ConnectionManager) Invalidate(id types.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[id]; ok {
		c.valid = false
	}
}

// Forget drops the session's connection entirely.
func (m *ConnectionManager) Forget(id types.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, id)
}

// Reset drops every connection.
func (m *ConnectionManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns = make(map[types.SessionID]*connection)
}

// Has reports whether a valid connection is cached for id.
func (m *ConnectionManager) Has(id types.SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	return ok && c.valid
}
