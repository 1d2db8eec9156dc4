package cmds

import (
	"context"
	"io"
	"os"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"

	"github.com/go-go-golems/medchat/pkg/chatrunner"
	"github.com/go-go-golems/medchat/pkg/config"
)

type ChatCommand struct {
	*cmds.CommandDescription

	in io.Reader
}

var _ cmds.WriterCommand = &ChatCommand{}

func NewChatCommand(base config.Settings) (*ChatCommand, error) {
	sections, err := config.NewSections(base)
	if err != nil {
		return nil, err
	}
	return &ChatCommand{
		CommandDescription: cmds.NewCommandDescription(
			"chat",
			cmds.WithShort("Open the interactive chat (default command)"),
			cmds.WithLong("Open the chat UI. When stdout is not a terminal, read one question per line "+
				"from stdin and print each reply instead."),
			cmds.WithSections(sections...),
		),
		in: os.Stdin,
	}, nil
}

func (c *ChatCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	s, err := config.FromValues(parsed)
	if err != nil {
		return err
	}
	return runChat(ctx, s, StdoutIsTerminal(), c.in, w)
}

// runChat starts the chat UI on a terminal and the line REPL otherwise.
func runChat(ctx context.Context, s config.Settings, terminal bool, in io.Reader, w io.Writer) error {
	session, err := OpenSession(ctx, s)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	b := chatrunner.NewChatBuilder().
		WithContext(ctx).
		WithController(session.Controller).
		WithThemes(session.Themes).
		WithBus(session.Bus).
		WithAltScreen(s.UI.AltScreen).
		WithOutputWriter(w)

	if terminal {
		b = b.WithMode(chatrunner.RunModeChat)
	} else {
		b = b.WithMode(chatrunner.RunModeLine).
			WithInput(in).
			WithRenderer(replyRenderer(session.Themes.Current()))
	}

	cs, err := b.Build()
	if err != nil {
		return err
	}
	return cs.Run()
}
