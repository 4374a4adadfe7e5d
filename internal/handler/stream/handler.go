package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/care-portal/backend/internal/handler/workspace"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
	"github.com/zhouzirui/care-portal/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler pushes portal view events to the browser over Server-Sent Events.
type Handler struct {
	workspaces workspace.Provider
	logger     *logging.Logger
	heartbeat  time.Duration
}

// New creates the event stream handler.
func New(workspaces workspace.Provider, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{workspaces: workspaces, logger: logger, heartbeat: defaultHeartbeat}
}

// RegisterRoutes mounts the event stream on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
}

// handleEvents writes a "snapshot" event with the current state and then
// one event per view change until the client disconnects.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	events, unsubscribe := ws.Feed.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With("client_id", ws.ClientID)
	logger.Debug("event stream opened")
	defer logger.Debug("event stream closed")

	if err := utils.SendSSEEvent(w, flusher, "snapshot", ws.Controller.Snapshot()); err != nil {
		logger.Warn("send snapshot failed", "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, ev.Type, ev); err != nil {
				logger.Debug("send event failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
