package cmds

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/go-go-golems/medchat/pkg/config"
	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/endpoint"
	"github.com/go-go-golems/medchat/pkg/events"
	"github.com/go-go-golems/medchat/pkg/render"
	"github.com/go-go-golems/medchat/pkg/theme"
)

// LogToFileAnnotation marks commands that own the terminal screen; their logs
// go to ~/.medchat/medchat.log unless --log-file is set.
const LogToFileAnnotation = "medchat/log-to-file"

// OpenThemes opens the preference store at path and loads the theme. A store
// that cannot be opened degrades to an in-memory one.
func OpenThemes(ctx context.Context, path string) (*theme.Manager, func() error, error) {
	var prefs theme.Store
	sqlite, err := theme.NewSQLiteStore(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("theme preference not persisted")
		prefs = theme.NewMemoryStore()
	} else {
		prefs = sqlite
	}
	m, err := theme.Load(ctx, prefs)
	if err != nil {
		_ = prefs.Close()
		return nil, nil, err
	}
	return m, prefs.Close, nil
}

// Session is one wired conversation: bus, store, endpoint client and theme.
type Session struct {
	Bus        *events.Bus
	Sink       *events.Sink
	Controller *conversation.Controller
	Themes     *theme.Manager

	closeThemes func() error
}

// OpenSession wires a conversation from s.
func OpenSession(ctx context.Context, s config.Settings) (*Session, error) {
	policy, err := conversation.ParsePolicy(s.Conversation.Policy)
	if err != nil {
		return nil, err
	}
	client, err := endpoint.NewClient(s.Endpoint.URL, endpoint.WithTimeout(s.Endpoint.Timeout))
	if err != nil {
		return nil, err
	}

	bus, err := events.NewBus(s.Events)
	if err != nil {
		return nil, errors.Wrap(err, "open event bus")
	}

	sessionID := uuid.NewString()
	sink := events.NewSink(bus.Publisher, sessionID, 0)
	store := conversation.NewStore(s.Conversation.Greeting,
		conversation.WithSessionID(sessionID),
		conversation.WithSink(sink),
	)
	controller := conversation.NewController(store, client,
		conversation.WithPreamble(s.Conversation.Preamble),
		conversation.WithPolicy(policy),
	)

	themes, closeThemes, err := OpenThemes(ctx, s.UI.ThemeDB)
	if err != nil {
		_ = sink.Close()
		_ = bus.Close()
		return nil, err
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("endpoint", s.Endpoint.URL).
		Str("policy", string(policy)).
		Str("transport", s.Events.Transport).
		Msg("session opened")

	return &Session{
		Bus:         bus,
		Sink:        sink,
		Controller:  controller,
		Themes:      themes,
		closeThemes: closeThemes,
	}, nil
}

func (s *Session) Close() error {
	var first error
	for _, c := range []func() error{s.Sink.Close, s.Bus.Close, s.closeThemes} {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func StdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func stdinIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// replyRenderer picks glamour for terminals and plain text for pipes or when
// NO_COLOR / CLICOLOR=0 is set.
func replyRenderer(t theme.Theme) render.Renderer {
	if !StdoutIsTerminal() || termenv.EnvNoColor() {
		return render.NewPlain()
	}
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	r, err := render.NewTerminal(t, width)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to plain rendering")
		return render.NewPlain()
	}
	return r
}
