// Package ui is the bubbletea chat screen.
package ui

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/render"
	"github.com/go-go-golems/medchat/pkg/theme"
)

const (
	Title       = "Medical ChatBot"
	Placeholder = "Describe your symptoms..."
	TypingText  = "Bot is typing..."

	busyStatus = "A reply is still on its way, try again in a moment."
)

type themeChangedMsg struct {
	theme theme.Theme
	err   error
}

type copiedMsg struct {
	err error
}

// configurable renderers follow theme and width changes.
type configurable interface {
	Configure(t theme.Theme, width int) error
}

type Options struct {
	Context   context.Context
	Backend   *ControllerBackend
	Themes    *theme.Manager
	Renderer  render.Renderer
	Clipboard func(string) error
}

type Model struct {
	ctx      context.Context
	backend  *ControllerBackend
	store    *conversation.Store
	themes   *theme.Manager
	styles   theme.Styles
	renderer render.Renderer
	copyText func(string) error

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width, height int
	ready         bool
	status        string
}

func NewModel(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	copyText := opts.Clipboard
	if copyText == nil {
		copyText = clipboard.WriteAll
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = render.NewPlain()
	}

	styles := theme.StylesFor(opts.Themes.Current())

	ti := textinput.New()
	ti.Placeholder = Placeholder
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Line), spinner.WithStyle(styles.Spinner))

	return Model{
		ctx:      ctx,
		backend:  opts.Backend,
		store:    opts.Backend.Controller().Store(),
		themes:   opts.Themes,
		styles:   styles,
		renderer: renderer,
		copyText: copyText,
		viewport: viewport.New(80, 10),
		input:    ti,
		spinner:  sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = ev.Width, ev.Height
		m.ready = true
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(ev)

	case StoreEventMsg:
		m.refresh()
		return m, nil

	case SubmissionSettledMsg:
		if ev.Err != nil && !errors.Is(ev.Err, context.Canceled) {
			m.status = ev.Err.Error()
		}
		m.refresh()
		return m, nil

	case themeChangedMsg:
		if ev.err != nil {
			m.status = "Could not save theme: " + ev.err.Error()
		}
		m.applyTheme(ev.theme)
		m.refresh()
		return m, nil

	case copiedMsg:
		if ev.err != nil {
			m.status = "Copy failed: " + ev.err.Error()
		} else {
			m.status = "Copied the last reply."
		}
		return m, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(ev)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(ev)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		m.status = ""
		cmd, err := m.backend.Start()
		if errors.Is(err, conversation.ErrBusy) {
			m.status = busyStatus
			return m, nil
		}
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.input.SetValue(m.store.Draft())
		m.refresh()
		return m, cmd

	case "ctrl+t":
		return m, m.toggleTheme()

	case "ctrl+y":
		return m, m.copyLastReply()

	case "pgup":
		m.viewport.PageUp()
		return m, nil

	case "pgdown":
		m.viewport.PageDown()
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(k)
	if v := m.input.Value(); v != before {
		m.store.SetDraft(v)
	}
	return m, cmd
}

func (m Model) toggleTheme() tea.Cmd {
	themes, ctx := m.themes, m.ctx
	return func() tea.Msg {
		t, err := themes.Toggle(ctx)
		return themeChangedMsg{theme: t, err: err}
	}
}

func (m Model) copyLastReply() tea.Cmd {
	var last string
	for _, msg := range m.store.Messages() {
		if msg.Role == conversation.RoleBot {
			last = msg.Text
		}
	}
	copyText := m.copyText
	return func() tea.Msg {
		return copiedMsg{err: copyText(last)}
	}
}

func (m *Model) applyTheme(t theme.Theme) {
	m.styles = theme.StylesFor(t)
	m.spinner.Style = m.styles.Spinner
	if c, ok := m.renderer.(configurable); ok {
		if err := c.Configure(t, m.bubbleWidth()-2); err != nil {
			log.Warn().Err(err).Str("component", "ui").Msg("reconfigure renderer")
		}
	}
}

// chrome is the number of lines around the viewport: header, typing line,
// bordered input (3) and help line.
const chrome = 6

func (m *Model) layout() {
	m.viewport.Width = m.width
	h := m.height - chrome
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
	m.input.Width = m.width - 6
	if c, ok := m.renderer.(configurable); ok {
		if err := c.Configure(m.themes.Current(), m.bubbleWidth()-2); err != nil {
			log.Warn().Err(err).Str("component", "ui").Msg("reconfigure renderer")
		}
	}
}

func (m Model) bubbleWidth() int {
	w := m.width * 3 / 4
	if w < 20 {
		w = 20
	}
	return w
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) renderText(text string) string {
	out, err := m.renderer.Render(text)
	if err != nil || strings.TrimSpace(out) == "" {
		return text
	}
	return out
}
