// Package backend defines the collaborator contract between the portal
// controller and the booking/upload/chat backend, together with an HTTP
// client that speaks it.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zhouzirui/care-portal/backend/internal/model/appointment"
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/internal/model/prescription"
)

var (
	// ErrNoReply is returned by AwaitReply when the wait ends without an answer.
	ErrNoReply = errors.New("no reply received")
	// ErrNotFound marks lookups of records or sessions that do not exist.
	ErrNotFound = errors.New("not found")
)

// Schedules lists doctors with their available slots.
type Schedules interface {
	ListSchedules(ctx context.Context, department, date string) ([]doctor.Doctor, error)
}

// Appointments books a drafted appointment and lists the bookings made.
type Appointments interface {
	Book(ctx context.Context, draft appointment.Draft) (appointment.Confirmation, error)
	ListAppointments(ctx context.Context) ([]appointment.Confirmation, error)
}

// Prescriptions stores uploaded prescriptions, pages through history and
// fetches single records.
type Prescriptions interface {
	Upload(ctx context.Context, meta prescription.Metadata, files []prescription.FileRef) (prescription.Record, error)
	History(ctx context.Context, offset int) (prescription.HistoryPage, error)
	Get(ctx context.Context, id string) (prescription.Record, error)
}

// Chat manages chat sessions. AwaitReply blocks until the doctor side
// answers the message identified by afterID or ctx ends. Sessions lists
// past conversations in a category, most recent activity first; an empty
// category lists all of them.
type Chat interface {
	StartSession(ctx context.Context, category string) (chat.Session, error)
	Sessions(ctx context.Context, category string) ([]chat.Session, error)
	Session(ctx context.Context, sessionID string) (chat.Session, error)
	CloseSession(ctx context.Context, sessionID string) error
	PostMessage(ctx context.Context, sessionID, text string) (chat.Message, error)
	Messages(ctx context.Context, sessionID string) ([]chat.Message, error)
	AwaitReply(ctx context.Context, sessionID, afterID string) (chat.Message, error)
}

// Backend bundles every collaborator the controller talks to.
type Backend interface {
	Schedules
	Appointments
	Prescriptions
	Chat
}

// APIError is a non-2xx answer from the remote backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status %d", e.Status)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.Status, e.Message)
}

// Is lets errors.Is match a 404 answer against ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Compose builds a Backend from individual collaborators.
func Compose(s Schedules, a Appointments, p Prescriptions, c Chat) Backend {
	return composite{Schedules: s, Appointments: a, Prescriptions: p, Chat: c}
}

type composite struct {
	Schedules
	Appointments
	Prescriptions
	Chat
}
