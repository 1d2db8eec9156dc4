package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/theme"
)

const helpText = "enter send • ctrl+t theme • ctrl+y copy reply • pgup/pgdown scroll • esc quit"

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		m.styles.Header.Render(Title),
		m.styles.ThemeIcon.Render(theme.Icon(m.themes.Current())),
	)

	typing := ""
	if m.store.Busy() {
		typing = m.spinner.View() + " " + m.styles.Typing.Render(TypingText)
	}
	if n := m.backend.Controller().Pending(); n > 0 {
		typing += m.styles.Typing.Render(fmt.Sprintf(" (%d queued)", n))
	}

	footer := m.styles.Help.Render(helpText)
	if m.status != "" {
		footer = m.styles.Status.Render(m.status)
	}

	return strings.Join([]string{
		header,
		m.viewport.View(),
		typing,
		m.styles.Input.Render(m.input.View()),
		footer,
	}, "\n")
}

// transcript renders every message as a bubble: bot on the left, user on
// the right.
func (m Model) transcript() string {
	msgs := m.store.Messages()
	maxInner := m.bubbleWidth() - 2

	rows := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		text := m.renderText(msg.Text)
		inner := lipgloss.Width(text)
		if inner > maxInner {
			inner = maxInner
		}

		if msg.Role == conversation.RoleUser {
			bubble := m.styles.UserBubble.Width(inner + 2).Render(text)
			rows = append(rows, lipgloss.PlaceHorizontal(m.width, lipgloss.Right, bubble))
			continue
		}
		rows = append(rows, m.styles.BotBubble.Width(inner+2).Render(text))
	}
	return strings.Join(rows, "\n")
}
