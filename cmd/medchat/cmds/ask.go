package cmds

import (
	"context"
	"io"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/medchat/pkg/chatrunner"
	"github.com/go-go-golems/medchat/pkg/config"
)

type AskCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = &AskCommand{}

type AskSettings struct {
	Question    []string `glazed:"question"`
	Interactive bool     `glazed:"interactive"`
}

func NewAskCommand(base config.Settings) (*AskCommand, error) {
	sections, err := config.NewSections(base)
	if err != nil {
		return nil, err
	}
	return &AskCommand{
		CommandDescription: cmds.NewCommandDescription(
			"ask",
			cmds.WithShort("Ask a single question and print the reply"),
			cmds.WithLong("Ask sends one question to the endpoint and prints the reply. It exits non-zero "+
				"when the endpoint cannot be reached. With --interactive, it offers to continue in the chat UI."),
			cmds.WithFlags(
				fields.New(
					"interactive",
					fields.TypeBool,
					fields.WithHelp("Offer to continue in chat mode after the reply"),
					fields.WithShortFlag("i"),
					fields.WithDefault(false),
				),
			),
			cmds.WithArguments(
				fields.New(
					"question",
					fields.TypeStringList,
					fields.WithHelp("The question; the words are joined with spaces"),
					fields.WithRequired(true),
				),
			),
			cmds.WithSections(sections...),
		),
	}, nil
}

func (c *AskCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	as := &AskSettings{}
	if err := parsed.DecodeSectionInto(values.DefaultSlug, as); err != nil {
		return err
	}
	s, err := config.FromValues(parsed)
	if err != nil {
		return err
	}
	return runAsk(ctx, s, as, w)
}

func runAsk(ctx context.Context, s config.Settings, as *AskSettings, w io.Writer) error {
	question := strings.TrimSpace(strings.Join(as.Question, " "))
	if question == "" {
		return errors.New("ask needs a question")
	}

	session, err := OpenSession(ctx, s)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	mode := chatrunner.RunModeBlocking
	if as.Interactive {
		mode = chatrunner.RunModeInteractive
	}

	cs, err := chatrunner.NewChatBuilder().
		WithContext(ctx).
		WithController(session.Controller).
		WithThemes(session.Themes).
		WithBus(session.Bus).
		WithAltScreen(s.UI.AltScreen).
		WithMode(mode).
		WithQuestion(question).
		WithRenderer(replyRenderer(session.Themes.Current())).
		WithOutputWriter(w).
		Build()
	if err != nil {
		return err
	}
	return cs.Run()
}
