package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/nexus-mcp/pkg/authz"
	"github.com/platinummonkey/nexus-mcp/pkg/contextkeys"
	"github.com/platinummonkey/nexus-mcp/pkg/httputil"
	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

const (
	// DefaultKeepalive is the idle interval between ping events
	DefaultKeepalive = 30 * time.Second
	// ConnectionHeader carries the session id on message posts
	ConnectionHeader = "X-Connection-Id"

	maxMessageBytes = 4 << 20
)

// HandlerConfig configures the HTTP transport
type HandlerConfig struct {
	Keepalive time.Duration
}

// Handler serves the MCP HTTP and SSE endpoints
type Handler struct {
	server    *Server
	hub       *Hub
	ops       Operations
	keepalive time.Duration
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewHandler creates the transport handler
func NewHandler(server *Server, hub *Hub, ops Operations, cfg HandlerConfig, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = DefaultKeepalive
	}
	return &Handler{
		server:    server,
		hub:       hub,
		ops:       ops,
		keepalive: cfg.Keepalive,
		logger:    logger.WithField("component", "mcp_transport"),
		now:       time.Now,
	}
}

// SetMetrics attaches session metrics
func (h *Handler) SetMetrics(m *observability.Metrics) {
	h.metrics = m
}

// RegisterRoutes mounts /mcp. Health is public; every other route is wrapped
// by auth and then by the optional extra middleware.
func (h *Handler) RegisterRoutes(r *mux.Router, auth func(http.Handler) http.Handler, extra ...func(http.Handler) http.Handler) {
	r.HandleFunc("/mcp/health", h.health).Methods(http.MethodGet)

	protected := r.PathPrefix("/mcp").Subrouter()
	protected.Use(auth)
	for _, mw := range extra {
		protected.Use(mw)
	}
	protected.HandleFunc("/sse", h.stream).Methods(http.MethodGet)
	protected.HandleFunc("/message", h.message).Methods(http.MethodPost)
	protected.HandleFunc("/tools", h.tools).Methods(http.MethodGet)
}

func caller(r *http.Request) Caller {
	p, _ := authz.PrincipalFromContext(r.Context())
	return Caller{Principal: p, ClientIP: contextkeys.GetClientIP(r.Context())}
}

// stream holds an SSE session open until the client leaves, a write fails
// or the hub shuts down
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	c := caller(r)
	session, err := h.hub.Open(c.Principal)
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}
	defer h.hub.Close(session.ID)

	logger := h.logger.WithField("connection_id", session.ID)
	if c.Principal != nil {
		logger = logger.WithField("principal", c.Principal.Username())
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(ConnectionHeader, session.ID)
	w.WriteHeader(http.StatusOK)

	write := func(event string, data interface{}) error {
		if err := writeEvent(w, event, data); err != nil {
			return err
		}
		flusher.Flush()
		if h.metrics != nil {
			h.metrics.SessionMessagesOut.WithLabelValues(event).Inc()
		}
		return nil
	}

	if err := write("connection", map[string]interface{}{
		"type":          "connection",
		"connection_id": session.ID,
		"message":       "Connected to Nexus Dashboard MCP server",
	}); err != nil {
		logger.WithError(err).Warn("failed to write connection event")
		return
	}
	if err := write("message", Notification{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
		Params: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities":    Capabilities{Tools: ToolsCapability{ListChanged: true}},
			"serverInfo":      ServerInfo{Name: ServerName, Version: h.server.version},
		},
	}); err != nil {
		logger.WithError(err).Warn("failed to write initialized event")
		return
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("client disconnected")
			return
		case <-session.Done():
			logger.Debug("session closed by server")
			return
		case msg := <-session.Queue():
			if err := write(msg.Event, msg.Data); err != nil {
				logger.WithError(err).Warn("stream write failed")
				return
			}
			ticker.Reset(h.keepalive)
		case <-ticker.C:
			if err := write("ping", map[string]interface{}{
				"type":      "ping",
				"timestamp": h.now().UTC().Format(time.RFC3339),
			}); err != nil {
				logger.WithError(err).Debug("keepalive write failed")
				return
			}
		}
	}
}

func writeEvent(w io.Writer, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

// message handles one JSON-RPC request and also pushes the response to the
// named session, or to every session when none is named
func (h *Handler) message(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error: "+err.Error()))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "Parse error: invalid JSON"))
		return
	}

	connectionID := r.Header.Get(ConnectionHeader)
	ctx := r.Context()
	if connectionID != "" {
		ctx = contextkeys.WithConnectionID(ctx, connectionID)
	}

	resp := h.server.Handle(ctx, caller(r), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	h.route(connectionID, resp)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) route(connectionID string, resp *Response) {
	msg := Message{Event: "message", Data: resp}
	if connectionID != "" {
		if _, ok := h.hub.Get(connectionID); ok {
			h.hub.Send(connectionID, msg)
			return
		}
		h.logger.WithField("connection_id", connectionID).Debug("unknown connection id, broadcasting")
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) tools(w http.ResponseWriter, r *http.Request) {
	tools := h.server.Tools(caller(r).Principal)
	httputil.WriteSuccess(w, map[string]interface{}{
		"count": len(tools),
		"tools": tools,
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.ops.Count() == 0 {
		status = "degraded"
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"status":            status,
		"transport":         "http/sse",
		"tool_mode":         h.server.Mode(),
		"operations_loaded": h.ops.Count(),
		"apis_loaded":       h.ops.LoadedNamespaces(),
		"sessions":          h.hub.Len(),
		"timestamp":         h.now().UTC().Format(time.RFC3339),
	})
}
