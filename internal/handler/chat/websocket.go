package chat

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/care-portal/backend/internal/handler/workspace"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler streams portal events to the chat page and accepts chat
// commands on the same connection.
type WebSocketHandler struct {
	workspaces workspace.Provider
	logger     *logging.Logger
	upgrader   websocket.Upgrader
}

// NewWebSocketHandler creates the handler. allowedOrigins follows the CORS
// list; "*" or an empty list accepts any origin.
func NewWebSocketHandler(workspaces workspace.Provider, allowedOrigins []string, logger *logging.Logger) *WebSocketHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebSocketHandler{
		workspaces: workspaces,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket route on r.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
		_, ok := set[origin]
		return ok || len(set) == 0
	}
}

type inboundMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Category string `json:"category,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := ws.Feed.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := h.logger.With("client_id", ws.ClientID)
	logger.Info("chat websocket connected")

	out := make(chan outgoingMessage, 16)
	go h.writeLoop(ctx, cancel, conn, events, out)

	send := func(msg outgoingMessage) {
		msg.Timestamp = time.Now().Unix()
		select {
		case out <- msg:
		case <-ctx.Done():
		}
	}
	send(outgoingMessage{Type: "snapshot", Data: ws.Controller.Snapshot()})

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			logger.Info("chat websocket closed")
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		send(h.dispatch(ctx, ws.Controller, msg))
	}
}

// dispatch runs one inbound command and returns the answer for the client.
func (h *WebSocketHandler) dispatch(ctx context.Context, ctrl *portal.Controller, msg inboundMessage) outgoingMessage {
	var (
		data interface{}
		err  error
	)
	switch msg.Type {
	case "start":
		data, err = ctrl.StartChat(ctx, msg.Category)
	case "message":
		data, err = ctrl.SendChatMessage(ctx, msg.Text)
	case "end":
		data, err = ctrl.EndChat(ctx)
	case "snapshot":
		data = ctrl.Snapshot()
	default:
		return outgoingMessage{Type: "error", Error: "unknown message type: " + msg.Type}
	}

	if err != nil {
		reply := outgoingMessage{Type: "error", Error: err.Error()}
		if verr, ok := portal.AsValidation(err); ok {
			reply.Kind = string(verr.Kind)
		}
		return reply
	}
	return outgoingMessage{Type: "result", Data: data}
}

// writeLoop owns every write on conn.
func (h *WebSocketHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, events <-chan portal.Event, out <-chan outgoingMessage) {
	defer cancel()
	// unblocks the reader once writing stops
	defer conn.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(v interface{}) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(v); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "workspace closed"),
					time.Now().Add(writeTimeout))
				return
			}
			if !write(outgoingMessage{Type: "event", Data: ev, Timestamp: ev.Time.Unix()}) {
				return
			}
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
