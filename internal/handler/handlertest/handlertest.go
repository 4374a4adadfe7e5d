// Package handlertest builds portal workspaces backed by the in-process
// services for handler tests.
package handlertest

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/middleware"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
	"github.com/zhouzirui/care-portal/backend/internal/service/booking"
	chatservice "github.com/zhouzirui/care-portal/backend/internal/service/chat"
	"github.com/zhouzirui/care-portal/backend/internal/service/prescription"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

// ClientID is the client id used by Request.
const ClientID = "test-client"

// Env is a registry wired to fast local services.
type Env struct {
	Registry *portal.Registry
	Chat     *chatservice.Service
	Uploads  *prescription.Service
}

// New builds an Env. Replies and uploads complete without delay.
func New(t *testing.T) *Env {
	t.Helper()

	logger := logging.Discard()
	roster := doctor.NewMemoryStore(doctor.Seed())
	chatSvc := chatservice.NewService(chatservice.Config{ReplyTimeout: time.Second, Doctors: roster, Logger: logger})
	uploads := prescription.NewService(prescription.Config{})
	bookings := booking.NewService(roster)
	be := backend.Compose(bookings, bookings, uploads, chatSvc)

	reg := portal.NewRegistry(func(clientID string, view portal.View) (*portal.Controller, error) {
		return portal.New(portal.Options{
			Backend:      be,
			View:         view,
			Logger:       logger.With("client_id", clientID),
			ReplyTimeout: time.Second,
		})
	}, nil, logger)

	t.Cleanup(chatSvc.Shutdown)
	return &Env{Registry: reg, Chat: chatSvc, Uploads: uploads}
}

// Workspace returns the workspace used by Request.
func (e *Env) Workspace(t *testing.T) *portal.Workspace {
	t.Helper()
	ws, err := e.Registry.Get(ClientID)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	return ws
}

// Serve runs req through h with the client id middleware and the test
// client header.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(middleware.ClientHeader, ClientID)
	rec := httptest.NewRecorder()
	middleware.ClientID(h).ServeHTTP(rec, req)
	return rec
}
