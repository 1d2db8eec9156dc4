package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is a single transcript entry. Messages are created by the Store and
// handed out by value, so a Message never changes after it was appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func newMessage(role Role, text string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: now,
	}
}

// State is a point-in-time copy of the session.
type State struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Draft     string    `json:"draft"`
	Busy      bool      `json:"busy"`
}

// LastMessage returns the most recent message, if any.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
