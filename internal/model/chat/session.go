package chat

import "time"

// Status of a chat session.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// DefaultCategory is used when a session is started without a category.
const DefaultCategory = "general"

// Session captures one continuous conversation between a patient and a doctor.
type Session struct {
	ID           string     `json:"id"`
	Category     string     `json:"category"`
	DoctorID     string     `json:"doctorId,omitempty"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	LastActivity time.Time  `json:"lastActivity"`
	Messages     []Message  `json:"messages"`
}

// Active reports whether new messages may be appended.
func (s *Session) Active() bool {
	return s != nil && s.Status == StatusActive
}

// Last returns the most recent message, if any.
func (s *Session) Last() (Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s Session) Clone() Session {
	s.Messages = append([]Message(nil), s.Messages...)
	if s.EndedAt != nil {
		ended := *s.EndedAt
		s.EndedAt = &ended
	}
	return s
}
