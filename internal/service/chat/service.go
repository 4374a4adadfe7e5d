package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

var (
	ErrSessionNotFound = fmt.Errorf("session %w", backend.ErrNotFound)
	ErrSessionClosed   = errors.New("session closed")
	ErrEmptyMessage    = errors.New("message is empty")
)

// ScriptedReply is the doctor acknowledgement sent when no responder is
// configured or the responder fails.
const ScriptedReply = "Thank you for your message. I'll review this and get back to you shortly."

// Responder drafts the doctor side answer to a patient message.
type Responder interface {
	Reply(ctx context.Context, session chat.Session, history []chat.Message, userText string) (string, error)
}

// ScriptedResponder always answers with ScriptedReply.
type ScriptedResponder struct{}

func (ScriptedResponder) Reply(context.Context, chat.Session, []chat.Message, string) (string, error) {
	return ScriptedReply, nil
}

// Config tunes the in-memory chat service. Doctors, when set, is the
// roster new sessions are assigned from.
type Config struct {
	ReplyDelay   time.Duration
	ReplyTimeout time.Duration
	Responder    Responder
	Doctors      doctor.Store
	Logger       *logging.Logger
}

// Service keeps chat sessions in memory and answers every patient message
// after ReplyDelay.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
	changed  map[string]chan struct{}
	timers   map[*time.Timer]struct{}

	replyDelay   time.Duration
	replyTimeout time.Duration
	responder    Responder
	doctors      doctor.Store
	logger       *logging.Logger
}

var _ backend.Chat = (*Service)(nil)

// NewService bootstraps the in-memory chat service.
func NewService(cfg Config) *Service {
	responder := cfg.Responder
	if responder == nil {
		responder = ScriptedResponder{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.ReplyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		sessions:     make(map[string]chat.Session),
		messages:     make(map[string][]chat.Message),
		changed:      make(map[string]chan struct{}),
		timers:       make(map[*time.Timer]struct{}),
		replyDelay:   cfg.ReplyDelay,
		replyTimeout: timeout,
		responder:    responder,
		doctors:      cfg.Doctors,
		logger:       logger,
	}
}

// CreateSession provisions an active session in the given category and
// assigns it a doctor.
func (s *Service) CreateSession(_ context.Context, category string) (chat.Session, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		category = chat.DefaultCategory
	}

	now := time.Now().UTC()
	session := chat.Session{
		ID:           uuid.NewString(),
		Category:     category,
		Status:       chat.StatusActive,
		StartedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	session.DoctorID = s.assignDoctorLocked(category)
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.changed[session.ID] = make(chan struct{})
	s.mu.Unlock()

	s.logger.Debug("chat session created", "session_id", session.ID, "category", category, "doctor_id", session.DoctorID)
	return session, nil
}

// assignDoctorLocked picks the doctor with the fewest active sessions. A
// category naming a department narrows the choice to that department.
// Ties go to the first doctor in roster order.
func (s *Service) assignDoctorLocked(category string) string {
	if s.doctors == nil {
		return ""
	}
	candidates := s.doctors.Filter(category)
	if len(candidates) == 0 {
		candidates = s.doctors.List()
	}

	load := make(map[string]int, len(s.sessions))
	for _, session := range s.sessions {
		if session.Status == chat.StatusActive && session.DoctorID != "" {
			load[session.DoctorID]++
		}
	}

	best := ""
	for _, doc := range candidates {
		if best == "" || load[doc.ID] < load[best] {
			best = doc.ID
		}
	}
	return best
}

// GetSession retrieves a session with its transcript.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	session.Messages = append([]chat.Message(nil), s.messages[sessionID]...)
	return session, nil
}

// ListSessions returns sessions in category without transcripts, most
// recent activity first. An empty category matches every session.
func (s *Service) ListSessions(_ context.Context, category string) ([]chat.Session, error) {
	category = strings.TrimSpace(category)

	s.mu.RLock()
	out := make([]chat.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if category != "" && !strings.EqualFold(session.Category, category) {
			continue
		}
		session.Messages = nil
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// SaveMessage appends a message to the session history and wakes reply
// waiters.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	message.Text = strings.TrimSpace(message.Text)
	if message.Text == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	if !message.Direction.Valid() {
		message.Direction = chat.Sent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[message.SessionID]
	if !ok {
		return chat.Message{}, ErrSessionNotFound
	}
	if session.Status != chat.StatusActive {
		return chat.Message{}, ErrSessionClosed
	}

	message.ID = uuid.NewString()
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	session.LastActivity = message.Timestamp
	s.sessions[message.SessionID] = session
	s.broadcastLocked(message.SessionID)
	return message, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// StartSession implements backend.Chat.
func (s *Service) StartSession(ctx context.Context, category string) (chat.Session, error) {
	return s.CreateSession(ctx, category)
}

// Sessions implements backend.Chat.
func (s *Service) Sessions(ctx context.Context, category string) ([]chat.Session, error) {
	return s.ListSessions(ctx, category)
}

// Session implements backend.Chat.
func (s *Service) Session(ctx context.Context, sessionID string) (chat.Session, error) {
	return s.GetSession(ctx, sessionID)
}

// CloseSession marks the session closed and releases reply waiters.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status == chat.StatusClosed {
		return nil
	}
	ended := time.Now().UTC()
	session.Status = chat.StatusClosed
	session.EndedAt = &ended
	s.sessions[sessionID] = session
	s.broadcastLocked(sessionID)
	return nil
}

// PostMessage stores the patient's message and schedules the doctor reply.
func (s *Service) PostMessage(ctx context.Context, sessionID, text string) (chat.Message, error) {
	saved, err := s.SaveMessage(ctx, chat.Message{SessionID: sessionID, Text: text, Direction: chat.Sent})
	if err != nil {
		return chat.Message{}, err
	}
	s.scheduleReply(sessionID, saved.Text)
	return saved, nil
}

// Messages implements backend.Chat.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	return s.LoadTranscript(ctx, sessionID)
}

// AwaitReply blocks until a received message follows afterID, the session
// closes or ctx ends.
func (s *Service) AwaitReply(ctx context.Context, sessionID, afterID string) (chat.Message, error) {
	for {
		s.mu.RLock()
		session, ok := s.sessions[sessionID]
		reply, found := backend.ReplyAfter(s.messages[sessionID], afterID)
		wake := s.changed[sessionID]
		s.mu.RUnlock()

		switch {
		case !ok:
			return chat.Message{}, ErrSessionNotFound
		case found:
			return reply, nil
		case session.Status == chat.StatusClosed:
			return chat.Message{}, backend.ErrNoReply
		}

		select {
		case <-ctx.Done():
			return chat.Message{}, backend.ErrNoReply
		case <-wake:
		}
	}
}

// Shutdown stops pending reply timers.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.timers {
		t.Stop()
		delete(s.timers, t)
	}
}

func (s *Service) scheduleReply(sessionID, userText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(s.replyDelay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
		s.deliverReply(sessionID, userText)
	})
	s.timers[timer] = struct{}{}
}

func (s *Service) deliverReply(sessionID, userText string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.replyTimeout)
	defer cancel()

	session, err := s.GetSession(ctx, sessionID)
	if err != nil || session.Status != chat.StatusActive {
		return
	}

	text, err := s.responder.Reply(ctx, session, session.Messages, userText)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			s.logger.Warn("responder failed, using scripted reply", "session_id", sessionID, "error", err)
		}
		text = ScriptedReply
	}

	if _, err := s.SaveMessage(ctx, chat.Message{SessionID: sessionID, Text: text, Direction: chat.Received}); err != nil {
		s.logger.Debug("reply not stored", "session_id", sessionID, "error", err)
	}
}

func (s *Service) broadcastLocked(sessionID string) {
	if ch, ok := s.changed[sessionID]; ok {
		close(ch)
	}
	s.changed[sessionID] = make(chan struct{})
}
