package chatrunner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	input "github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/events"
	"github.com/go-go-golems/medchat/pkg/render"
	"github.com/go-go-golems/medchat/pkg/theme"
	"github.com/go-go-golems/medchat/pkg/ui"
)

// RunMode defines the execution mode for the chat session.
type RunMode string

const (
	RunModeChat        RunMode = "chat"
	RunModeLine        RunMode = "line"
	RunModeInteractive RunMode = "interactive"
	RunModeBlocking    RunMode = "blocking"
)

// ErrExchangeFailed is returned by the blocking modes when the endpoint could
// not be reached or answered with an error.
var ErrExchangeFailed = errors.New("exchange failed")

const lineQuitCommand = "/quit"

// ChatSession holds the validated configuration and executes the chat logic.
// It is created by the ChatBuilder.
type ChatSession struct {
	ctx            context.Context
	controller     *conversation.Controller
	themes         *theme.Manager
	bus            *events.Bus
	renderer       render.Renderer
	clipboard      func(string) error
	programOptions []tea.ProgramOption
	mode           RunMode
	question       string
	input          io.Reader
	outputWriter   io.Writer
	tty            io.ReadWriter
	isTTY          func() bool
}

// Run executes the chat session based on its configured mode.
func (cs *ChatSession) Run() error {
	switch cs.mode {
	case RunModeChat:
		return cs.runChatInternal()
	case RunModeLine:
		return cs.runLineInternal()
	case RunModeInteractive:
		return cs.runInteractiveInternal()
	case RunModeBlocking:
		return cs.runBlockingInternal()
	default:
		return errors.Errorf("unknown run mode: %v", cs.mode)
	}
}

// runChatInternal runs the bubbletea program and a watermill router that
// forwards the session's store events into it.
func (cs *ChatSession) runChatInternal() error {
	router, err := cs.bus.NewRouter()
	if err != nil {
		return err
	}

	eg, childCtx := errgroup.WithContext(cs.ctx)
	childCtx, cancel := context.WithCancel(childCtx)
	defer cancel()

	renderer := cs.renderer
	if renderer == nil {
		term, err := render.NewTerminal(cs.themes.Current(), 80)
		if err != nil {
			log.Warn().Err(err).Str("component", "chatrunner").Msg("falling back to plain rendering")
			renderer = render.NewPlain()
		} else {
			renderer = term
		}
	}

	model := ui.NewModel(ui.Options{
		Context:   childCtx,
		Backend:   ui.NewControllerBackend(childCtx, cs.controller),
		Themes:    cs.themes,
		Renderer:  renderer,
		Clipboard: cs.clipboard,
	})
	opts := append([]tea.ProgramOption{tea.WithContext(childCtx)}, cs.programOptions...)
	p := tea.NewProgram(model, opts...)

	topic := events.TopicForSession(cs.controller.Store().SessionID())
	if err := cs.bus.PrepareTopic(childCtx, topic); err != nil {
		_ = router.Close()
		return errors.Wrap(err, "prepare event topic")
	}
	log.Debug().Str("component", "chatrunner").Str("topic", topic).Msg("Adding UI event handler")
	router.AddNoPublisherHandler("ui-forward", topic, cs.bus.Subscriber, ui.StoreForwardFunc(p))

	eg.Go(func() error {
		defer cancel()
		if err := router.Run(childCtx); err != nil {
			return errors.Wrap(err, "router failed")
		}
		return nil
	})

	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-childCtx.Done():
			return nil
		}

		log.Debug().Str("component", "chatrunner").Msg("Starting Bubble Tea program")
		_, runErr := p.Run()
		log.Debug().Err(runErr).Str("component", "chatrunner").Msg("Bubble Tea program finished")

		if runErr != nil && errors.Is(runErr, tea.ErrProgramKilled) && childCtx.Err() != nil {
			return nil
		}
		return runErr
	})

	err = eg.Wait()
	if closeErr := router.Close(); closeErr != nil {
		log.Debug().Err(closeErr).Str("component", "chatrunner").Msg("router close")
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runLineInternal is a plain read-eval-print loop for non-terminal use.
func (cs *ChatSession) runLineInternal() error {
	store := cs.controller.Store()
	if last, ok := store.Snapshot().LastMessage(); ok {
		if err := cs.printReply(last.Text); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(cs.input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if _, err := fmt.Fprint(cs.outputWriter, "> "); err != nil {
			return errors.Wrap(err, "failed to write prompt")
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == lineQuitCommand {
			return nil
		}

		outcome, err := cs.exchange(line)
		if err != nil {
			if errors.Is(err, context.Canceled) && cs.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if outcome == conversation.OutcomeSkipped {
			continue
		}
		if err := cs.printLastReply(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed to read input")
	}
	_, _ = fmt.Fprintln(cs.outputWriter)
	return nil
}

func (cs *ChatSession) exchange(text string) (conversation.Outcome, error) {
	cs.controller.Store().SetDraft(text)
	return cs.controller.Submit(cs.ctx)
}

// runBlockingInternal submits the question once and prints the reply.
func (cs *ChatSession) runBlockingInternal() error {
	outcome, err := cs.exchange(cs.question)
	if err != nil {
		if errors.Is(err, context.Canceled) && cs.ctx.Err() != nil {
			log.Debug().Msg("Blocking exchange cancelled by context")
			return nil
		}
		return errors.Wrap(err, "exchange failed")
	}
	if outcome == conversation.OutcomeSkipped {
		return errors.New("question is empty")
	}
	if err := cs.printLastReply(); err != nil {
		return err
	}
	if outcome == conversation.OutcomeRejected {
		return ErrExchangeFailed
	}
	return nil
}

// runInteractiveInternal handles the initial blocking run and the optional
// switch to the chat UI.
func (cs *ChatSession) runInteractiveInternal() error {
	log.Debug().Msg("Running initial blocking step for interactive mode")
	if err := cs.runBlockingInternal(); err != nil {
		return errors.Wrap(err, "error during initial blocking step")
	}

	if !cs.isTTY() {
		log.Debug().Msg("Stderr is not a TTY, skipping chat continuation prompt")
		return nil
	}

	continueInChat, err := askForChatContinuation(cs.tty)
	if err != nil {
		return errors.Wrap(err, "failed to ask for chat continuation")
	}
	if !continueInChat {
		log.Debug().Msg("User chose not to continue in chat mode")
		return nil
	}

	log.Debug().Msg("User chose to continue, starting chat UI")
	return cs.runChatInternal()
}

func (cs *ChatSession) printLastReply() error {
	last, ok := cs.controller.Store().Snapshot().LastMessage()
	if !ok || last.Role != conversation.RoleBot {
		return nil
	}
	return cs.printReply(last.Text)
}

func (cs *ChatSession) printReply(text string) error {
	out := text
	if cs.renderer != nil {
		if rendered, err := cs.renderer.Render(text); err == nil && strings.TrimSpace(rendered) != "" {
			out = rendered
		}
	}
	if _, err := fmt.Fprintln(cs.outputWriter, out); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	return nil
}

// --- ChatBuilder ---

// ChatBuilder provides a fluent API for configuring and running a chat session.
type ChatBuilder struct {
	err            error
	ctx            context.Context
	controller     *conversation.Controller
	themes         *theme.Manager
	bus            *events.Bus
	renderer       render.Renderer
	clipboard      func(string) error
	programOptions []tea.ProgramOption
	altScreen      bool
	mode           RunMode
	question       string
	input          io.Reader
	outputWriter   io.Writer
	tty            io.ReadWriter
	isTTY          func() bool
}

// NewChatBuilder creates a new builder with default settings.
func NewChatBuilder() *ChatBuilder {
	return &ChatBuilder{
		ctx:          context.Background(),
		altScreen:    true,
		input:        os.Stdin,
		outputWriter: os.Stdout,
		tty:          os.Stderr,
		isTTY: func() bool {
			return isatty.IsTerminal(os.Stderr.Fd())
		},
		mode: RunModeChat,
	}
}

// WithContext sets the context for the chat session.
func (b *ChatBuilder) WithContext(ctx context.Context) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if ctx == nil {
		b.err = errors.New("context cannot be nil")
		return b
	}
	b.ctx = ctx
	return b
}

// WithController sets the conversation controller. (Required)
func (b *ChatBuilder) WithController(controller *conversation.Controller) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if controller == nil {
		b.err = errors.New("controller cannot be nil")
		return b
	}
	b.controller = controller
	return b
}

// WithThemes sets the theme manager used by the chat UI.
func (b *ChatBuilder) WithThemes(themes *theme.Manager) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.themes = themes
	return b
}

// WithBus sets the event bus the store publishes to. Required for chat mode.
func (b *ChatBuilder) WithBus(bus *events.Bus) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.bus = bus
	return b
}

// WithRenderer sets the renderer for replies. The chat UI builds a glamour
// renderer when none is set; the line modes print raw text.
func (b *ChatBuilder) WithRenderer(r render.Renderer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.renderer = r
	return b
}

func (b *ChatBuilder) WithClipboard(fn func(string) error) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.clipboard = fn
	return b
}

// WithProgramOptions adds options for configuring the bubbletea program.
func (b *ChatBuilder) WithProgramOptions(opts ...tea.ProgramOption) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.programOptions = append(b.programOptions, opts...)
	return b
}

func (b *ChatBuilder) WithAltScreen(enabled bool) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.altScreen = enabled
	return b
}

// WithMode sets the execution mode.
func (b *ChatBuilder) WithMode(mode RunMode) *ChatBuilder {
	if b.err != nil {
		return b
	}
	switch mode {
	case RunModeChat, RunModeLine, RunModeInteractive, RunModeBlocking:
		b.mode = mode
	default:
		b.err = errors.Errorf("invalid run mode: %s", mode)
	}
	return b
}

// WithQuestion sets the question for the blocking and interactive modes.
func (b *ChatBuilder) WithQuestion(q string) *ChatBuilder {
	if b.err != nil {
		return b
	}
	b.question = q
	return b
}

// WithInput sets the reader for line mode. Defaults to os.Stdin.
func (b *ChatBuilder) WithInput(r io.Reader) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if r == nil {
		b.err = errors.New("input reader cannot be nil")
		return b
	}
	b.input = r
	return b
}

// WithOutputWriter sets the writer for the non-UI modes. Defaults to os.Stdout.
func (b *ChatBuilder) WithOutputWriter(w io.Writer) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if w == nil {
		b.err = errors.New("output writer cannot be nil")
		return b
	}
	b.outputWriter = w
	return b
}

// WithTTY overrides the terminal used for the chat continuation prompt.
func (b *ChatBuilder) WithTTY(tty io.ReadWriter, isTTY func() bool) *ChatBuilder {
	if b.err != nil {
		return b
	}
	if tty == nil || isTTY == nil {
		b.err = errors.New("tty and its check cannot be nil")
		return b
	}
	b.tty, b.isTTY = tty, isTTY
	return b
}

// Build validates the configuration and returns the session.
func (b *ChatBuilder) Build() (*ChatSession, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.controller == nil {
		return nil, errors.New("controller is required (use WithController)")
	}
	if b.mode == "" {
		return nil, errors.New("run mode is required (use WithMode)")
	}
	needsUI := b.mode == RunModeChat || b.mode == RunModeInteractive
	if needsUI && b.bus == nil {
		return nil, errors.New("event bus is required for chat mode (use WithBus)")
	}
	if needsUI && b.themes == nil {
		return nil, errors.New("theme manager is required for chat mode (use WithThemes)")
	}
	if (b.mode == RunModeBlocking || b.mode == RunModeInteractive) && strings.TrimSpace(b.question) == "" {
		return nil, errors.New("question is required for blocking or interactive mode (use WithQuestion)")
	}

	programOptions := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if b.altScreen {
		programOptions = append(programOptions, tea.WithAltScreen())
	}
	programOptions = append(programOptions, b.programOptions...)

	return &ChatSession{
		ctx:            b.ctx,
		controller:     b.controller,
		themes:         b.themes,
		bus:            b.bus,
		renderer:       b.renderer,
		clipboard:      b.clipboard,
		programOptions: programOptions,
		mode:           b.mode,
		question:       b.question,
		input:          b.input,
		outputWriter:   b.outputWriter,
		tty:            b.tty,
		isTTY:          b.isTTY,
	}, nil
}

// askForChatContinuation prompts on the given terminal whether to continue
// in chat mode.
func askForChatContinuation(tty io.ReadWriter) (bool, error) {
	ui := &input.UI{
		Writer: tty,
		Reader: tty,
	}

	_, _ = fmt.Fprint(tty, "\n")
	query := "Do you want to continue in chat mode? [Y/n]"
	answer, err := ui.Ask(query, &input.Options{
		Default:  "y",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}

	_, _ = fmt.Fprint(tty, "\n")
	return answer == "y" || answer == "Y" || answer == "", nil
}
