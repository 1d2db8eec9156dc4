// Package render turns bot replies, which the endpoint returns as markdown,
// into terminal output.
package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"

	"github.com/go-go-golems/medchat/pkg/theme"
)

type Renderer interface {
	Render(markdown string) (string, error)
}

const minWrapWidth = 20

// Terminal renders markdown with glamour using the theme's standard style.
type Terminal struct {
	mu    sync.Mutex
	style string
	width int
	tr    *glamour.TermRenderer
}

var _ Renderer = &Terminal{}

func NewTerminal(t theme.Theme, width int) (*Terminal, error) {
	r := &Terminal{}
	if err := r.reset(theme.GlamourStyle(t), width); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Terminal) reset(style string, width int) error {
	if width < minWrapWidth {
		width = minWrapWidth
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return errors.Wrap(err, "create glamour renderer")
	}
	r.style, r.width, r.tr = style, width, tr
	return nil
}

// Configure rebuilds the renderer when the theme or wrap width changed.
func (r *Terminal) Configure(t theme.Theme, width int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	style := theme.GlamourStyle(t)
	if width < minWrapWidth {
		width = minWrapWidth
	}
	if style == r.style && width == r.width {
		return nil
	}
	return r.reset(style, width)
}

func (r *Terminal) Render(markdown string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, err := r.tr.Render(markdown)
	if err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return strings.Trim(out, "\n"), nil
}
