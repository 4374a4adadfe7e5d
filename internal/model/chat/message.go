package chat

import "time"

// Direction tells which side of the conversation authored a message.
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Sent || d == Received
}

// Message is a single chat turn between patient and doctor.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}
