package schedule

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/care-portal/backend/internal/handler/workspace"
	"github.com/zhouzirui/care-portal/backend/internal/model/appointment"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
	"github.com/zhouzirui/care-portal/backend/pkg/utils"
)

// Handler serves the scheduling page: doctor listings and the slot/doctor
// selection.
type Handler struct {
	workspaces workspace.Provider
}

// New creates the scheduling handler.
func New(workspaces workspace.Provider) *Handler {
	return &Handler{workspaces: workspaces}
}

// RegisterRoutes mounts the scheduling routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/departments", h.handleDepartments)
	r.Get("/doctors", h.handleListDoctors)
	r.Get("/state", h.handleState)
	r.Post("/selection/slot", h.handleSelectSlot)
	r.Post("/selection/doctor", h.handleSelectDoctor)
	r.Post("/appointments/draft", h.handleDraft)
}

// SlotView is a slot annotated with whether it is the current selection.
type SlotView struct {
	doctor.Slot
	Selected bool `json:"selected"`
}

// DoctorView is a doctor card as rendered on the scheduling page.
type DoctorView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Title      string     `json:"title"`
	Department string     `json:"department"`
	Experience string     `json:"experience,omitempty"`
	Selected   bool       `json:"selected"`
	Slots      []SlotView `json:"slots"`
}

type doctorsResponse struct {
	Doctors   []DoctorView `json:"doctors"`
	Selection portal.State `json:"selection"`
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, doctor.Departments())
}

func (h *Handler) handleListDoctors(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}

	query := r.URL.Query()
	doctors, err := ws.Controller.FilterDoctors(r.Context(), query.Get("department"), query.Get("date"))
	if err != nil {
		workspace.RespondError(w, err)
		return
	}

	selection := ws.Controller.Snapshot().Selection
	utils.RespondJSON(w, http.StatusOK, doctorsResponse{
		Doctors:   renderDoctors(doctors, selection),
		Selection: selection,
	})
}

func renderDoctors(doctors []doctor.Doctor, selection portal.State) []DoctorView {
	views := make([]DoctorView, 0, len(doctors))
	for _, d := range doctors {
		view := DoctorView{
			ID:         d.ID,
			Name:       d.Name,
			Title:      d.Title,
			Department: d.Department,
			Experience: d.Experience,
			Selected:   selection.SelectedDoctor == d.Name,
			Slots:      make([]SlotView, 0, len(d.Slots)),
		}
		for _, slot := range d.Slots {
			view.Slots = append(view.Slots, SlotView{Slot: slot, Selected: selection.IsSelected(slot.ID)})
		}
		views = append(views, view)
	}
	return views
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, ws.Controller.Snapshot())
}

func (h *Handler) handleSelectSlot(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SlotID string `json:"slotId"`
	}
	if err := workspace.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload.SlotID = strings.TrimSpace(payload.SlotID)
	if payload.SlotID == "" {
		utils.RespondError(w, http.StatusBadRequest, "slotId is required")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}
	ws.Controller.SelectSlot(payload.SlotID)
	utils.RespondJSON(w, http.StatusOK, ws.Controller.Snapshot().Selection)
}

func (h *Handler) handleSelectDoctor(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := workspace.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}
	ws.Controller.SelectDoctor(payload.Name)
	utils.RespondJSON(w, http.StatusOK, ws.Controller.Snapshot().Selection)
}

// handleDraft validates the booking form against the current selection
// without submitting it.
func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	var form appointment.Form
	if err := workspace.DecodeJSON(r, &form); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws, ok := workspace.FromRequest(w, r, h.workspaces)
	if !ok {
		return
	}
	draft, err := ws.Controller.RequestBooking(form)
	if err != nil {
		workspace.RespondError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, draft)
}
