package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/care-portal/backend/internal/handler/workspace"
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
	"github.com/zhouzirui/care-portal/backend/pkg/utils"
)

// Handler serves the chat page over plain HTTP.
type Handler struct {
	workspaces workspace.Provider
}

// New creates the chat handler.
func New(workspaces workspace.Provider) *Handler {
	return &Handler{workspaces: workspaces}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/session", h.handleStartSession)
		r.Delete("/session", h.handleEndSession)
		r.Get("/sessions", h.handleListSessions)
		r.Post("/sessions/{id}/open", h.handleOpenSession)
		r.Get("/messages", h.handleTranscript)
		r.Post("/messages", h.handleSendMessage)
		r.Post("/messages/local", h.handleAppendMessage)
	})
}

type transcriptResponse struct {
	Session *chat.Session `json:"session"`
	Typing  bool          `json:"typing"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Category string `json:"category"`
	}
	if err := workspace.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	session, err := ws.Controller.StartChat(r.Context(), payload.Category)
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	session, err := ws.Controller.EndChat(r.Context())
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleListSessions lists past conversations, optionally narrowed by
// ?category=.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	sessions, err := ws.Controller.ChatSessions(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	session, err := ws.Controller.OpenChat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}
	snap := ws.Controller.Snapshot()
	utils.RespondJSON(w, http.StatusOK, transcriptResponse{Session: snap.Chat, Typing: snap.Typing})
}

// handleSendMessage posts the text to the doctor. The reply arrives later
// through the event stream, so the response is 202.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := workspace.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	session, err := ws.Controller.SendChatMessage(r.Context(), payload.Text)
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, session)
}

// handleAppendMessage records a message in the transcript without sending
// it anywhere.
func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text      string         `json:"text"`
		Direction chat.Direction `json:"direction"`
	}
	if err := workspace.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Direction == "" {
		payload.Direction = chat.Sent
	}
	if !payload.Direction.Valid() {
		utils.RespondError(w, http.StatusBadRequest, "direction must be sent or received")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	session, err := ws.Controller.AppendChatMessage(payload.Text, payload.Direction)
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}
