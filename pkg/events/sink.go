package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/medchat/pkg/conversation"
)

var (
	ErrSinkClosed = errors.New("event sink closed")
	ErrSinkFull   = errors.New("event sink buffer full")
)

const (
	defaultSinkBuffer = 1024
	closeTimeout      = 2 * time.Second
)

// Sink publishes store events on the session topic from one background
// goroutine, so store mutations never wait on the transport and events keep
// their order.
type Sink struct {
	pub   message.Publisher
	topic string

	mu     sync.RWMutex
	closed bool
	ch     chan conversation.Event
	done   chan struct{}
}

var _ conversation.Sink = &Sink{}

func NewSink(pub message.Publisher, sessionID string, buffer int) *Sink {
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	s := &Sink{
		pub:   pub,
		topic: TopicForSession(sessionID),
		ch:    make(chan conversation.Event, buffer),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) Topic() string { return s.topic }

func (s *Sink) Publish(ev conversation.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- ev:
		return nil
	default:
		return ErrSinkFull
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.ch {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Warn().Err(err).Str("component", "event_sink").Msg("marshal store event")
			continue
		}
		msg := message.NewMessage(uuid.NewString(), payload)
		msg.Metadata.Set("type", string(ev.Type))
		msg.Metadata.Set("session_id", ev.SessionID)
		if err := s.pub.Publish(s.topic, msg); err != nil {
			log.Warn().Err(err).Str("component", "event_sink").Str("topic", s.topic).Msg("publish store event")
		}
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (s *Sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-time.After(closeTimeout):
		return errors.New("event sink: timed out draining events")
	}
}
