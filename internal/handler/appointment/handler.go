package appointment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/care-portal/backend/internal/handler/workspace"
	"github.com/zhouzirui/care-portal/backend/internal/model/appointment"
	"github.com/zhouzirui/care-portal/backend/pkg/utils"
)

// Handler books appointments for the selected slot.
type Handler struct {
	workspaces workspace.Provider
}

// New creates the appointment handler.
func New(workspaces workspace.Provider) *Handler {
	return &Handler{workspaces: workspaces}
}

// RegisterRoutes mounts the booking routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/appointments", h.handleList)
	r.Post("/appointments", h.handleBook)
}

type bookRequest struct {
	Doctor string `json:"doctor"`
	appointment.Form
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	var payload bookRequest
	if err := workspace.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	confirmation, err := ws.Controller.BookAppointment(r.Context(), payload.Doctor, payload.Form)
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, confirmation)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	confirmations, err := ws.Controller.ListAppointments(r.Context())
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	if confirmations == nil {
		confirmations = []appointment.Confirmation{}
	}
	utils.RespondJSON(w, http.StatusOK, confirmations)
}
