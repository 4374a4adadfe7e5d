package portal

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/care-portal/backend/internal/model/chat"
)

// AppendMessage appends text to session and returns the updated session.
// The input session is left untouched.
func AppendMessage(session chat.Session, text string, direction chat.Direction, now time.Time) (chat.Session, error) {
	return appendMessage(session, chat.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Direction: direction,
		Timestamp: now,
	})
}

func appendMessage(session chat.Session, msg chat.Message) (chat.Session, error) {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return session, ErrEmptyMessage
	}
	if !session.Active() {
		return session, ErrNoActiveSession
	}
	if !msg.Direction.Valid() {
		msg.Direction = chat.Sent
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.SessionID = session.ID

	next := session.Clone()
	next.Messages = append(next.Messages, msg)
	return next, nil
}
