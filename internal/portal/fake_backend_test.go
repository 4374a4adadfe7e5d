package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/model/appointment"
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/internal/model/prescription"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

type fakeBackend struct {
	mu sync.Mutex

	bookErr   error
	uploadErr error
	booked    []appointment.Draft
	uploaded  [][]prescription.FileRef
	posted    []string
	closed    []string
	replyText string
	records   map[string]prescription.Record
	sessions  []chat.Session
	// release, when set, holds AwaitReply until it is closed.
	release chan struct{}
}

var _ backend.Backend = (*fakeBackend)(nil)

func (f *fakeBackend) ListSchedules(_ context.Context, department, _ string) ([]doctor.Doctor, error) {
	return doctor.NewMemoryStore(doctor.Seed()).Filter(department), nil
}

func (f *fakeBackend) Book(_ context.Context, draft appointment.Draft) (appointment.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return appointment.Confirmation{}, f.bookErr
	}
	f.booked = append(f.booked, draft)
	return appointment.Confirmation{ID: uuid.NewString(), Doctor: draft.Doctor, Slot: draft.Slot, Status: appointment.StatusConfirmed}, nil
}

func (f *fakeBackend) ListAppointments(context.Context) ([]appointment.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]appointment.Confirmation, 0, len(f.booked))
	for i, draft := range f.booked {
		out = append(out, appointment.Confirmation{ID: fmt.Sprintf("c-%d", i+1), Doctor: draft.Doctor, Slot: draft.Slot, Date: draft.Date, Status: appointment.StatusConfirmed})
	}
	return out, nil
}

func (f *fakeBackend) Upload(_ context.Context, meta prescription.Metadata, files []prescription.FileRef) (prescription.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return prescription.Record{}, f.uploadErr
	}
	f.uploaded = append(f.uploaded, files)
	return prescription.Record{ID: uuid.NewString(), Metadata: meta, Files: files}, nil
}

func (f *fakeBackend) History(_ context.Context, offset int) (prescription.HistoryPage, error) {
	return prescription.HistoryPage{Offset: offset, Limit: prescription.PageSize}, nil
}

func (f *fakeBackend) Get(_ context.Context, id string) (prescription.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return prescription.Record{}, backend.ErrNotFound
	}
	return record, nil
}

func (f *fakeBackend) Sessions(_ context.Context, category string) ([]chat.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chat.Session
	for _, session := range f.sessions {
		if category == "" || session.Category == category {
			summary := session.Clone()
			summary.Messages = nil
			out = append(out, summary)
		}
	}
	return out, nil
}

func (f *fakeBackend) Session(_ context.Context, sessionID string) (chat.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.ID == sessionID {
			return session.Clone(), nil
		}
	}
	return chat.Session{}, backend.ErrNotFound
}

func (f *fakeBackend) StartSession(_ context.Context, category string) (chat.Session, error) {
	return chat.Session{ID: uuid.NewString(), Category: category, Status: chat.StatusActive}, nil
}

func (f *fakeBackend) CloseSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
	return nil
}

func (f *fakeBackend) PostMessage(_ context.Context, sessionID, text string) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, text)
	return chat.Message{ID: fmt.Sprintf("ack-%d", len(f.posted)), SessionID: sessionID, Text: text, Direction: chat.Sent}, nil
}

func (f *fakeBackend) Messages(context.Context, string) ([]chat.Message, error) {
	return nil, nil
}

func (f *fakeBackend) AwaitReply(ctx context.Context, sessionID, _ string) (chat.Message, error) {
	f.mu.Lock()
	release := f.release
	text := f.replyText
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return chat.Message{}, backend.ErrNoReply
		}
	}
	if text == "" {
		return chat.Message{}, backend.ErrNoReply
	}
	return chat.Message{ID: uuid.NewString(), SessionID: sessionID, Text: text, Direction: chat.Received, Timestamp: time.Now()}, nil
}

type recordingView struct {
	mu         sync.Mutex
	selections []State
	batches    []BatchView
	chats      []chat.Session
	typing     []bool
	busy       []bool
	notices    []Notice
}

func (v *recordingView) SelectionChanged(s State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selections = append(v.selections, s)
}

func (v *recordingView) BatchChanged(b BatchView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.batches = append(v.batches, b)
}

func (v *recordingView) ChatChanged(s chat.Session) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chats = append(v.chats, s)
}

func (v *recordingView) TypingChanged(b bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.typing = append(v.typing, b)
}

func (v *recordingView) BusyChanged(b bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.busy = append(v.busy, b)
}

func (v *recordingView) Notify(n Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, n)
}

func (v *recordingView) lastBatch() BatchView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.batches[len(v.batches)-1]
}

func newTestController(t interface{ Fatalf(string, ...any) }, be *fakeBackend) (*Controller, *recordingView) {
	view := &recordingView{}
	ctrl, err := New(Options{
		Backend:      be,
		View:         view,
		Logger:       logging.Discard(),
		ReplyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ctrl, view
}
