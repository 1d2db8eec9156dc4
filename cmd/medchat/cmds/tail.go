package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/medchat/pkg/config"
	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/events"
)

type TailCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = &TailCommand{}

type TailSettings struct {
	Session string `glazed:"session"`
	Raw     bool   `glazed:"raw"`
	Drafts  bool   `glazed:"drafts"`
}

func NewTailCommand(base config.Settings) (*TailCommand, error) {
	sections, err := config.NewSections(base)
	if err != nil {
		return nil, err
	}
	return &TailCommand{
		CommandDescription: cmds.NewCommandDescription(
			"tail",
			cmds.WithShort("Follow the events of a running session over Redis Streams"),
			cmds.WithLong("Tail subscribes to a session's event stream. The chat process must run with "+
				"--transport redis; the session id is in its debug log."),
			cmds.WithFlags(
				fields.New("session", fields.TypeString,
					fields.WithHelp("Session id to follow"),
					fields.WithDefault("")),
				fields.New("raw", fields.TypeBool,
					fields.WithHelp("Print event payloads as JSON"),
					fields.WithDefault(false)),
				fields.New("drafts", fields.TypeBool,
					fields.WithHelp("Also print draft changes"),
					fields.WithDefault(false)),
			),
			cmds.WithSections(sections...),
		),
	}, nil
}

func (c *TailCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	ts := &TailSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, ts); err != nil {
		return err
	}
	s, err := config.FromValues(parsed)
	if err != nil {
		return err
	}
	es, err := tailSettings(s.Events, ts)
	if err != nil {
		return err
	}
	return tail(ctx, es, ts, w)
}

// tailSettings checks the tail flags and returns the bus settings of a
// private consumer group. A fresh group sees the whole stream without
// stealing messages from the chat UI's group.
func tailSettings(s events.Settings, ts *TailSettings) (events.Settings, error) {
	if strings.TrimSpace(ts.Session) == "" {
		return events.Settings{}, errors.New("--session is required")
	}
	s = s.Normalize()
	if !s.UsesRedis() {
		return events.Settings{}, errors.New("tail needs --transport redis")
	}
	s.Redis.Group = "medchat-tail-" + uuid.NewString()
	s.Redis.Consumer = "tail"
	return s, nil
}

func tail(ctx context.Context, s events.Settings, ts *TailSettings, w io.Writer) error {
	bus, err := events.NewBus(s)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	msgs, err := bus.Subscriber.Subscribe(ctx, events.TopicForSession(ts.Session))
	if err != nil {
		return errors.Wrap(err, "subscribe to session")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if ts.Raw {
				_, _ = fmt.Fprintln(w, string(msg.Payload))
				msg.Ack()
				continue
			}
			ev, err := events.DecodeEvent(msg)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Msg("skipping malformed event")
				continue
			}
			printEvent(w, ev, ts.Drafts)
		}
	}
}

func printEvent(w io.Writer, ev conversation.Event, drafts bool) {
	ts := ev.At.Format("15:04:05")
	switch ev.Type {
	case conversation.EventMessageAppended:
		if ev.Message != nil {
			_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", ts, ev.Message.Role, ev.Message.Text)
		}
	case conversation.EventBusyChanged:
		state := "idle"
		if ev.Busy {
			state = "waiting for reply"
		}
		_, _ = fmt.Fprintf(w, "[%s] -- %s\n", ts, state)
	case conversation.EventDraftChanged:
		if drafts {
			_, _ = fmt.Fprintf(w, "[%s] draft: %q\n", ts, ev.Draft)
		}
	}
}
