package ui

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/events"
)

// StoreEventMsg carries a session store event into the bubbletea loop.
type StoreEventMsg struct {
	Event conversation.Event
}

// SubmissionSettledMsg is sent once a submission started from the UI settled.
type SubmissionSettledMsg struct {
	Text    string
	Outcome conversation.Outcome
	Err     error
}

// ControllerBackend starts submissions on behalf of the UI. Begin runs
// synchronously inside Update; the wait for the endpoint happens in the
// returned command.
type ControllerBackend struct {
	ctx        context.Context
	controller *conversation.Controller
}

func NewControllerBackend(ctx context.Context, controller *conversation.Controller) *ControllerBackend {
	return &ControllerBackend{ctx: ctx, controller: controller}
}

func (b *ControllerBackend) Controller() *conversation.Controller {
	return b.controller
}

// Start submits the current draft. A nil command means the draft was blank.
func (b *ControllerBackend) Start() (tea.Cmd, error) {
	sub, err := b.controller.Begin()
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	ctx := b.ctx
	return func() tea.Msg {
		outcome, err := sub.Await(ctx)
		return SubmissionSettledMsg{Text: sub.Text(), Outcome: outcome, Err: err}
	}, nil
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// StoreForwardFunc forwards store events read from the bus into the program.
func StoreForwardFunc(p Sender) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		msg.Ack()

		ev, err := events.DecodeEvent(msg)
		if err != nil {
			log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("Failed to parse store event")
			return err
		}
		log.Trace().Str("type", string(ev.Type)).Str("session_id", ev.SessionID).Msg("Dispatching store event to UI")
		p.Send(StoreEventMsg{Event: ev})
		return nil
	}
}
