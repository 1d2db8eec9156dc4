package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType names a store mutation.
type EventType string

const (
	EventMessageAppended EventType = "message-appended"
	EventDraftChanged    EventType = "draft-changed"
	EventBusyChanged     EventType = "busy-changed"
)

// Event is published to the store's Sink after every mutation.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Message   *Message  `json:"message,omitempty"`
	Draft     string    `json:"draft"`
	Busy      bool      `json:"busy"`
	At        time.Time `json:"at"`
}

// Sink receives store events. Implementations must not call back into the
// Store synchronously.
type Sink interface {
	Publish(ev Event) error
}

// Store holds the session state and is its only mutation point.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	messages  []Message
	draft     string
	busy      bool

	sink Sink
	now  func() time.Time
}

type StoreOption func(*Store)

// WithSink attaches an observer sink.
func WithSink(sink Sink) StoreOption {
	return func(s *Store) {
		s.sink = sink
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) StoreOption {
	return func(s *Store) {
		if id != "" {
			s.sessionID = id
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a session seeded with one bot greeting. An empty greeting
// falls back to DefaultGreeting.
func NewStore(greeting string, opts ...StoreOption) *Store {
	s := &Store{
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if greeting == "" {
		greeting = DefaultGreeting
	}
	s.messages = []Message{newMessage(RoleBot, greeting, s.now())}
	return s
}

func (s *Store) SessionID() string {
	return s.sessionID
}

// AppendMessage appends one message to the transcript and returns it.
func (s *Store) AppendMessage(role Role, text string) Message {
	s.mu.Lock()
	msg := newMessage(role, text, s.now())
	s.messages = append(s.messages, msg)
	ev := s.eventLocked(EventMessageAppended)
	s.mu.Unlock()

	ev.Message = &msg
	s.publish(ev)
	return msg
}

// SetDraft replaces the draft.
func (s *Store) SetDraft(text string) {
	s.mu.Lock()
	if s.draft == text {
		s.mu.Unlock()
		return
	}
	s.draft = text
	ev := s.eventLocked(EventDraftChanged)
	s.mu.Unlock()

	s.publish(ev)
}

// SetBusy replaces the busy flag.
func (s *Store) SetBusy(flag bool) {
	s.mu.Lock()
	if s.busy == flag {
		s.mu.Unlock()
		return
	}
	s.busy = flag
	ev := s.eventLocked(EventBusyChanged)
	s.mu.Unlock()

	s.publish(ev)
}

func (s *Store) Draft() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

func (s *Store) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// Messages returns a copy of the transcript.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return State{
		SessionID: s.sessionID,
		Messages:  out,
		Draft:     s.draft,
		Busy:      s.busy,
	}
}

func (s *Store) eventLocked(t EventType) Event {
	return Event{
		Type:      t,
		SessionID: s.sessionID,
		Draft:     s.draft,
		Busy:      s.busy,
		At:        s.now(),
	}
}

func (s *Store) publish(ev Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ev); err != nil {
		log.Warn().Err(err).
			Str("component", "session_store").
			Str("session_id", s.sessionID).
			Str("event", string(ev.Type)).
			Msg("failed to publish store event")
	}
}
