package schedule

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/care-portal/backend/internal/handler/handlertest"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
)

func setupRouter(t *testing.T) (*chi.Mux, *handlertest.Env) {
	env := handlertest.New(t)
	r := chi.NewRouter()
	New(env.Registry).RegisterRoutes(r)
	return r, env
}

func postJSON(path string, body any) *http.Request {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestListDoctorsFiltersByDepartment(t *testing.T) {
	r, _ := setupRouter(t)

	resp := handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/doctors?department=neurology", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body doctorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Doctors) != 1 || body.Doctors[0].Name != "Dr. Michael Chen" {
		t.Fatalf("expected only Dr. Michael Chen, got %+v", body.Doctors)
	}
}

func TestSelectSlotMarksExactlyOneSlot(t *testing.T) {
	r, _ := setupRouter(t)
	first := doctor.SlotID("dr-sarah-johnson", "09:00 AM")
	second := doctor.SlotID("dr-michael-chen", "11:00 AM")

	for _, id := range []string{first, second} {
		resp := handlertest.Serve(r, postJSON("/selection/slot", map[string]string{"slotId": id}))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
	}

	resp := handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/doctors", nil))
	var body doctorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	selected := 0
	for _, d := range body.Doctors {
		for _, s := range d.Slots {
			if s.Selected {
				selected++
				if s.ID != second {
					t.Fatalf("expected %s selected, got %s", second, s.ID)
				}
			}
		}
	}
	if selected != 1 {
		t.Fatalf("expected exactly one selected slot, got %d", selected)
	}
}

func TestSelectSlotRequiresSlotID(t *testing.T) {
	r, _ := setupRouter(t)

	resp := handlertest.Serve(r, postJSON("/selection/slot", map[string]string{}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSelectBlankSlotIsRejected(t *testing.T) {
	r, env := setupRouter(t)

	handlertest.Serve(r, postJSON("/selection/slot", map[string]string{"slotId": "dr-emily-davis@02:00 PM"}))
	resp := handlertest.Serve(r, postJSON("/selection/slot", map[string]string{"slotId": "   "}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	sel := env.Workspace(t).Controller.Snapshot().Selection
	if sel.SelectedTimeSlot != "dr-emily-davis@02:00 PM" {
		t.Fatalf("selection changed to %q", sel.SelectedTimeSlot)
	}
}

func TestDraftWithoutSlotIsUnprocessable(t *testing.T) {
	r, _ := setupRouter(t)

	resp := handlertest.Serve(r, postJSON("/appointments/draft", map[string]string{"patientName": "Ada"}))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}

	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != string(portal.KindNoSlotSelected) {
		t.Fatalf("expected kind %s, got %s", portal.KindNoSlotSelected, body.Kind)
	}
}

func TestSelectDoctorUpdatesState(t *testing.T) {
	r, env := setupRouter(t)

	resp := handlertest.Serve(r, postJSON("/selection/doctor", map[string]string{"name": "Dr. Lisa Patel"}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	got := env.Workspace(t).Controller.Snapshot().Selection.SelectedDoctor
	if got != "Dr. Lisa Patel" {
		t.Fatalf("expected Dr. Lisa Patel selected, got %q", got)
	}
}

func TestDepartments(t *testing.T) {
	r, _ := setupRouter(t)

	resp := handlertest.Serve(r, httptest.NewRequest(http.MethodGet, "/departments", nil))
	var departments []string
	if err := json.NewDecoder(resp.Body).Decode(&departments); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(departments) != len(doctor.Departments()) {
		t.Fatalf("expected %d departments, got %d", len(doctor.Departments()), len(departments))
	}
}
