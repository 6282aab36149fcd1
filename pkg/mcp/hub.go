package mcp

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/nexus-mcp/pkg/authz"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// DefaultQueueSize is the per-session outbound buffer
const DefaultQueueSize = 64

// ErrHubClosed is returned when opening a session after shutdown
var ErrHubClosed = errors.New("session hub is closed")

// Message is one queued outbound event
type Message struct {
	Event string
	Data  interface{}
}

// Session is one open event stream
type Session struct {
	ID        string
	Principal authz.Principal
	CreatedAt time.Time

	queue     chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// Queue returns the outbound messages of the session
func (s *Session) Queue() <-chan Message {
	return s.queue
}

// Done is closed when the session is removed from its hub
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub tracks open sessions and routes responses to them
type Hub struct {
	queueSize int
	logger    *observability.Logger
	metrics   *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewHub creates an empty hub
func NewHub(queueSize int, logger *observability.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Hub{
		queueSize: queueSize,
		logger:    logger.WithField("component", "session_hub"),
		sessions:  make(map[string]*Session),
	}
}

// SetMetrics attaches session metrics
func (h *Hub) SetMetrics(m *observability.Metrics) {
	h.metrics = m
}

// Open registers a new session for p
func (h *Hub) Open(p authz.Principal) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		Principal: p,
		CreatedAt: time.Now().UTC(),
		queue:     make(chan Message, h.queueSize),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.sessions[s.ID] = s
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SessionsActive.Inc()
	}
	h.logger.WithField("connection_id", s.ID).Info("session opened")
	return s, nil
}

// Close unregisters a session. Closing an unknown id is a no-op.
func (h *Hub) Close(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	if h.metrics != nil {
		h.metrics.SessionsActive.Dec()
	}
	h.logger.WithField("connection_id", id).Info("session closed")
}

// Get returns an open session
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Len returns the number of open sessions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Send queues msg for one session and reports whether it was accepted
func (h *Hub) Send(id string, msg Message) bool {
	s, ok := h.Get(id)
	if !ok {
		return false
	}
	return h.enqueue(s, msg)
}

// Broadcast queues msg for every open session and returns how many accepted it
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if h.enqueue(s, msg) {
			delivered++
		}
	}
	return delivered
}

// enqueue never blocks: a full queue drops the message
func (h *Hub) enqueue(s *Session, msg Message) bool {
	select {
	case s.queue <- msg:
		return true
	default:
		if h.metrics != nil {
			h.metrics.SessionDrops.Inc()
		}
		h.logger.WithFields(map[string]interface{}{
			"connection_id": s.ID,
			"event":         msg.Event,
		}).Warn("session queue full, message dropped")
		return false
	}
}

// Shutdown closes every session and rejects new ones
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
		if h.metrics != nil {
			h.metrics.SessionsActive.Dec()
		}
	}
	if len(sessions) > 0 {
		h.logger.WithField("sessions", len(sessions)).Info("closed open sessions")
	}
}
