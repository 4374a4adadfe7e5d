// Package portal holds the patient portal's client-side state: the slot and
// doctor selection, the staged upload batch and the active chat session.
// Commands validate input locally, hand complete requests to the backend
// collaborators and report every change through a View.
package portal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/model/appointment"
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/internal/model/prescription"
	"github.com/zhouzirui/care-portal/backend/internal/observability/metrics"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

const (
	defaultReplyTimeout = 30 * time.Second
	successNoticeTTL    = 3 * time.Second
)

// Options configures a Controller.
type Options struct {
	Backend      backend.Backend
	View         View
	Metrics      *metrics.PortalMetrics
	Logger       *logging.Logger
	Clock        func() time.Time
	ReplyTimeout time.Duration
}

// Controller coordinates the user's choices across the scheduling, upload
// and chat pages.
//
// Commands are serialized by cmd so each one runs to completion before the
// next starts. mu guards the state fields and is also taken by the
// background reply waiter.
type Controller struct {
	cmd sync.Mutex
	mu  sync.Mutex

	selection State
	batch     UploadBatch
	session   *chat.Session
	pending   int
	busy      bool

	backend      backend.Backend
	view         View
	metrics      *metrics.PortalMetrics
	logger       *logging.Logger
	now          func() time.Time
	replyTimeout time.Duration

	replies sync.WaitGroup
}

// New builds a controller. Backend is required.
func New(opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, errors.New("portal: backend is required")
	}
	view := opts.View
	if view == nil {
		view = NopView{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	timeout := opts.ReplyTimeout
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}

	return &Controller{
		backend:      opts.Backend,
		view:         view,
		metrics:      opts.Metrics,
		logger:       logger,
		now:          clock,
		replyTimeout: timeout,
	}, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Selection: c.selection,
		Batch:     c.batch.View(),
		Typing:    c.pending > 0,
		Busy:      c.busy,
	}
	if c.session != nil {
		s := c.session.Clone()
		snap.Chat = &s
	}
	return snap
}

// Wait blocks until every outstanding reply wait has finished.
func (c *Controller) Wait() {
	c.replies.Wait()
}

// SelectSlot marks slotID as the selected slot, replacing any previous one.
// A blank id leaves the selection untouched.
func (c *Controller) SelectSlot(slotID string) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return
	}

	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	c.selection.SelectedTimeSlot = slotID
	sel := c.selection
	c.mu.Unlock()

	c.metrics.ObserveOperation("select_slot", nil)
	c.view.SelectionChanged(sel)
}

// SelectDoctor records the doctor the user wants to book with.
func (c *Controller) SelectDoctor(name string) {
	c.cmd.Lock()
	defer c.cmd.Unlock()
	c.selectDoctor(name)
}

func (c *Controller) selectDoctor(name string) {
	c.mu.Lock()
	c.selection.SelectedDoctor = strings.TrimSpace(name)
	sel := c.selection
	c.mu.Unlock()

	c.metrics.ObserveOperation("select_doctor", nil)
	c.view.SelectionChanged(sel)
}

// RequestBooking combines the selection with the booking form into a draft.
// It fails with ErrNoSlotSelected when no slot is selected.
func (c *Controller) RequestBooking(form appointment.Form) (appointment.Draft, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()
	return c.requestBooking(form)
}

func (c *Controller) requestBooking(form appointment.Form) (appointment.Draft, error) {
	c.mu.Lock()
	sel := c.selection
	c.mu.Unlock()

	if !sel.HasSlot() {
		return appointment.Draft{}, c.invalid("request_booking", ErrNoSlotSelected)
	}
	c.metrics.ObserveOperation("request_booking", nil)
	return appointment.Draft{
		Doctor: sel.SelectedDoctor,
		Slot:   sel.SelectedTimeSlot,
		Form:   trimForm(form),
	}, nil
}

// BookAppointment selects doctorName, drafts the booking and submits it. On
// confirmation the selection is reset.
func (c *Controller) BookAppointment(ctx context.Context, doctorName string, form appointment.Form) (appointment.Confirmation, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	if strings.TrimSpace(doctorName) != "" {
		c.selectDoctor(doctorName)
	}
	draft, err := c.requestBooking(form)
	if err != nil {
		return appointment.Confirmation{}, err
	}

	var confirmation appointment.Confirmation
	err = c.call(ctx, "book_appointment", func(ctx context.Context) error {
		var err error
		confirmation, err = c.backend.Book(ctx, draft)
		return err
	})
	if err != nil {
		c.view.Notify(Notice{Level: NoticeError, Message: "Appointment could not be booked. Please try again."})
		return appointment.Confirmation{}, err
	}

	c.mu.Lock()
	c.selection = State{}
	sel := c.selection
	c.mu.Unlock()

	c.logger.Info("appointment booked", "doctor", draft.Doctor, "slot", draft.Slot, "confirmation_id", confirmation.ID)
	c.view.SelectionChanged(sel)
	c.view.Notify(Notice{Level: NoticeSuccess, Message: "Appointment booked successfully!", TTL: successNoticeTTL})
	return confirmation, nil
}

// ListAppointments returns the bookings confirmed so far.
func (c *Controller) ListAppointments(ctx context.Context) ([]appointment.Confirmation, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	var confirmations []appointment.Confirmation
	err := c.call(ctx, "list_appointments", func(ctx context.Context) error {
		var err error
		confirmations, err = c.backend.ListAppointments(ctx)
		return err
	})
	return confirmations, err
}

// FilterDoctors fetches doctor schedules for a department and date. An
// empty department lists every doctor.
func (c *Controller) FilterDoctors(ctx context.Context, department, date string) ([]doctor.Doctor, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	var doctors []doctor.Doctor
	err := c.call(ctx, "filter_doctors", func(ctx context.Context) error {
		var err error
		doctors, err = c.backend.ListSchedules(ctx, strings.TrimSpace(department), strings.TrimSpace(date))
		return err
	})
	return doctors, err
}

// AddFiles appends files to the batch.
func (c *Controller) AddFiles(files ...prescription.FileRef) UploadBatch {
	c.cmd.Lock()
	defer c.cmd.Unlock()
	return c.updateBatch("add_files", func(b *UploadBatch) { b.Add(files...) })
}

// ReplaceFiles swaps the batch for files.
func (c *Controller) ReplaceFiles(files ...prescription.FileRef) UploadBatch {
	c.cmd.Lock()
	defer c.cmd.Unlock()
	return c.updateBatch("replace_files", func(b *UploadBatch) { b.Replace(files...) })
}

// RemoveFile drops the file at index. Out of range indexes leave the batch
// unchanged and emit nothing.
func (c *Controller) RemoveFile(index int) UploadBatch {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	removed := c.batch.Remove(index)
	batch := c.batch.Clone()
	c.mu.Unlock()

	if removed {
		c.metrics.ObserveOperation("remove_file", nil)
		c.view.BatchChanged(batch.View())
	}
	return batch
}

// ResetUpload clears the batch.
func (c *Controller) ResetUpload() UploadBatch {
	c.cmd.Lock()
	defer c.cmd.Unlock()
	return c.updateBatch("reset_upload", func(b *UploadBatch) { b.Clear() })
}

func (c *Controller) updateBatch(op string, mutate func(*UploadBatch)) UploadBatch {
	c.mu.Lock()
	mutate(&c.batch)
	batch := c.batch.Clone()
	c.mu.Unlock()

	c.metrics.ObserveOperation(op, nil)
	c.view.BatchChanged(batch.View())
	return batch
}

// SubmitUpload sends the staged files with meta to the prescriptions
// backend and waits for the acknowledgement. It fails with ErrEmptyBatch
// when nothing is staged. The batch is cleared only after success.
func (c *Controller) SubmitUpload(ctx context.Context, meta prescription.Metadata) (prescription.Record, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	if c.batch.Empty() {
		c.mu.Unlock()
		return prescription.Record{}, c.invalid("submit_upload", ErrEmptyBatch)
	}
	files := c.batch.Files()
	c.busy = true
	c.mu.Unlock()
	c.view.BusyChanged(true)

	var record prescription.Record
	err := c.call(ctx, "submit_upload", func(ctx context.Context) error {
		var err error
		record, err = c.backend.Upload(ctx, trimMetadata(meta), files)
		return err
	})

	c.mu.Lock()
	c.busy = false
	if err == nil {
		c.batch.Clear()
	}
	batch := c.batch.View()
	c.mu.Unlock()
	c.view.BusyChanged(false)

	if err != nil {
		c.view.Notify(Notice{Level: NoticeError, Message: "Upload failed. Please try again."})
		return prescription.Record{}, err
	}

	c.logger.Info("prescription uploaded", "record_id", record.ID, "files", len(files))
	c.view.BatchChanged(batch)
	c.view.Notify(Notice{Level: NoticeSuccess, Message: "Prescription uploaded successfully!", TTL: successNoticeTTL})
	return record, nil
}

// LoadHistory returns one page of prescription history.
func (c *Controller) LoadHistory(ctx context.Context, offset int) (prescription.HistoryPage, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	if offset < 0 {
		offset = 0
	}
	var page prescription.HistoryPage
	err := c.call(ctx, "load_history", func(ctx context.Context) error {
		var err error
		page, err = c.backend.History(ctx, offset)
		return err
	})
	return page, err
}

// ViewPrescription fetches a single uploaded prescription by id.
func (c *Controller) ViewPrescription(ctx context.Context, id string) (prescription.Record, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	var record prescription.Record
	err := c.call(ctx, "view_prescription", func(ctx context.Context) error {
		var err error
		record, err = c.backend.Get(ctx, strings.TrimSpace(id))
		return err
	})
	return record, err
}

// StartChat opens a new chat session, replacing the current one.
func (c *Controller) StartChat(ctx context.Context, category string) (chat.Session, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	category = strings.TrimSpace(category)
	if category == "" {
		category = chat.DefaultCategory
	}

	var session chat.Session
	err := c.call(ctx, "start_chat", func(ctx context.Context) error {
		var err error
		session, err = c.backend.StartSession(ctx, category)
		return err
	})
	if err != nil {
		return chat.Session{}, err
	}
	if session.Status == "" {
		session.Status = chat.StatusActive
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = c.now()
	}
	session.Messages = append([]chat.Message(nil), session.Messages...)

	c.mu.Lock()
	c.session = &session
	c.pending = 0
	out := session.Clone()
	c.mu.Unlock()

	c.logger.Info("chat session started", "session_id", session.ID, "category", session.Category)
	c.view.TypingChanged(false)
	c.view.ChatChanged(out.Clone())
	return out, nil
}

// ChatSessions lists past conversations in category, most recent activity
// first. An empty category lists all of them.
func (c *Controller) ChatSessions(ctx context.Context, category string) ([]chat.Session, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	var sessions []chat.Session
	err := c.call(ctx, "chat_sessions", func(ctx context.Context) error {
		var err error
		sessions, err = c.backend.Sessions(ctx, strings.TrimSpace(category))
		return err
	})
	return sessions, err
}

// OpenChat loads a past conversation with its transcript and makes it the
// current session. A closed session stays closed, so appends to it fail
// with ErrNoActiveSession.
func (c *Controller) OpenChat(ctx context.Context, sessionID string) (chat.Session, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	var session chat.Session
	err := c.call(ctx, "open_chat", func(ctx context.Context) error {
		var err error
		session, err = c.backend.Session(ctx, strings.TrimSpace(sessionID))
		return err
	})
	if err != nil {
		return chat.Session{}, err
	}
	session = session.Clone()

	c.mu.Lock()
	c.session = &session
	c.pending = 0
	out := session.Clone()
	c.mu.Unlock()

	c.logger.Info("chat session opened", "session_id", session.ID, "category", session.Category, "messages", len(session.Messages))
	c.view.TypingChanged(false)
	c.view.ChatChanged(out.Clone())
	return out, nil
}

// AppendChatMessage adds a message to the active session without involving
// the backend.
func (c *Controller) AppendChatMessage(text string, direction chat.Direction) (chat.Session, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	out, _, err := c.appendLocal(chat.Message{Text: text, Direction: direction, Timestamp: c.now()})
	if err != nil {
		return chat.Session{}, c.invalid("append_chat_message", err)
	}
	c.metrics.ObserveOperation("append_chat_message", nil)
	c.view.ChatChanged(out.Clone())
	return out, nil
}

func (c *Controller) appendLocal(msg chat.Message) (chat.Session, chat.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(msg.Text) == "" {
		return chat.Session{}, chat.Message{}, ErrEmptyMessage
	}
	if c.session == nil {
		return chat.Session{}, chat.Message{}, ErrNoActiveSession
	}
	next, err := appendMessage(*c.session, msg)
	if err != nil {
		return chat.Session{}, chat.Message{}, err
	}
	c.session = &next
	last, _ := next.Last()
	return next.Clone(), last, nil
}

// SendChatMessage appends text as a sent message, posts it to the backend
// and waits in the background for the doctor's reply. The typing indicator
// stays on until the reply arrives or the wait times out.
func (c *Controller) SendChatMessage(ctx context.Context, text string) (chat.Session, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	out, local, err := c.appendLocal(chat.Message{Text: text, Direction: chat.Sent, Timestamp: c.now()})
	if err != nil {
		return chat.Session{}, c.invalid("send_chat_message", err)
	}
	c.view.ChatChanged(out.Clone())

	var ack chat.Message
	err = c.call(ctx, "send_chat_message", func(ctx context.Context) error {
		var err error
		ack, err = c.backend.PostMessage(ctx, out.ID, local.Text)
		return err
	})
	if err != nil {
		c.view.Notify(Notice{Level: NoticeError, Message: "Message could not be delivered."})
		return out, err
	}

	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
	c.view.TypingChanged(true)

	c.replies.Add(1)
	go c.awaitReply(out.ID, ack.ID)
	return out, nil
}

func (c *Controller) awaitReply(sessionID, afterID string) {
	defer c.replies.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.replyTimeout)
	defer cancel()

	started := time.Now()
	reply, err := c.backend.AwaitReply(ctx, sessionID, afterID)
	c.metrics.ObserveBackendLatency("await_reply", time.Since(started).Seconds())
	c.metrics.ObserveOperation("await_reply", err)

	c.mu.Lock()
	if c.session == nil || c.session.ID != sessionID {
		c.mu.Unlock()
		c.logger.Debug("dropping reply for replaced chat session", "session_id", sessionID)
		return
	}
	if c.pending > 0 {
		c.pending--
	}
	typing := c.pending > 0

	var (
		out     chat.Session
		changed bool
	)
	if err == nil {
		ts := reply.Timestamp
		if ts.IsZero() {
			ts = c.now()
		}
		next, appendErr := appendMessage(*c.session, chat.Message{
			ID:        reply.ID,
			Text:      reply.Text,
			Direction: chat.Received,
			Timestamp: ts,
		})
		if appendErr == nil {
			c.session = &next
			out = next.Clone()
			changed = true
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("no chat reply", "session_id", sessionID, "error", err)
	}
	c.view.TypingChanged(typing)
	if changed {
		c.view.ChatChanged(out)
	}
}

// EndChat closes the active session. Later appends fail with
// ErrNoActiveSession.
func (c *Controller) EndChat(ctx context.Context) (chat.Session, error) {
	c.cmd.Lock()
	defer c.cmd.Unlock()

	c.mu.Lock()
	if !c.session.Active() {
		c.mu.Unlock()
		return chat.Session{}, c.invalid("end_chat", ErrNoActiveSession)
	}
	sessionID := c.session.ID
	c.mu.Unlock()

	if err := c.call(ctx, "end_chat", func(ctx context.Context) error {
		return c.backend.CloseSession(ctx, sessionID)
	}); err != nil {
		return chat.Session{}, err
	}

	c.mu.Lock()
	ended := c.now()
	c.session.Status = chat.StatusClosed
	c.session.EndedAt = &ended
	c.pending = 0
	out := c.session.Clone()
	c.mu.Unlock()

	c.logger.Info("chat session ended", "session_id", sessionID)
	c.view.TypingChanged(false)
	c.view.ChatChanged(out.Clone())
	return out, nil
}

func (c *Controller) call(ctx context.Context, op string, fn func(context.Context) error) error {
	started := time.Now()
	err := fn(ctx)
	c.metrics.ObserveBackendLatency(op, time.Since(started).Seconds())
	c.metrics.ObserveOperation(op, err)
	if err != nil {
		c.logger.Error("backend call failed", "operation", op, "error", err)
	}
	return err
}

func (c *Controller) invalid(op string, err error) error {
	if verr, ok := AsValidation(err); ok {
		c.metrics.ObserveValidation(string(verr.Kind))
	}
	c.metrics.ObserveOperation(op, err)
	c.logger.Debug("validation failed", "operation", op, "error", err)
	return err
}

func trimForm(f appointment.Form) appointment.Form {
	return appointment.Form{
		PatientName:  strings.TrimSpace(f.PatientName),
		PatientPhone: strings.TrimSpace(f.PatientPhone),
		PatientEmail: strings.TrimSpace(f.PatientEmail),
		Reason:       strings.TrimSpace(f.Reason),
		Date:         strings.TrimSpace(f.Date),
	}
}

func trimMetadata(m prescription.Metadata) prescription.Metadata {
	return prescription.Metadata{
		Type:       strings.TrimSpace(m.Type),
		DoctorName: strings.TrimSpace(m.DoctorName),
		Date:       strings.TrimSpace(m.Date),
		Notes:      strings.TrimSpace(m.Notes),
	}
}
