package theme

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles groups the lipgloss styles of the chat screen.
type Styles struct {
	Header     lipgloss.Style
	ThemeIcon  lipgloss.Style
	BotBubble  lipgloss.Style
	UserBubble lipgloss.Style
	Typing     lipgloss.Style
	Input      lipgloss.Style
	Help       lipgloss.Style
	Status     lipgloss.Style
	Spinner    lipgloss.Style
}

type palette struct {
	fg, muted, accent    lipgloss.Color
	botBg, botFg         lipgloss.Color
	userBg, userFg       lipgloss.Color
	inputBorder, spinner lipgloss.Color
}

var palettes = map[Theme]palette{
	Light: {
		fg:          "#111827",
		muted:       "#6B7280",
		accent:      "#2563EB",
		botBg:       "#BFDBFE",
		botFg:       "#000000",
		userBg:      "#BBF7D0",
		userFg:      "#000000",
		inputBorder: "#D1D5DB",
		spinner:     "63",
	},
	Dark: {
		fg:          "#FFFFFF",
		muted:       "#9CA3AF",
		accent:      "#1D4ED8",
		botBg:       "#2563EB",
		botFg:       "#FFFFFF",
		userBg:      "#16A34A",
		userFg:      "#FFFFFF",
		inputBorder: "#4B5563",
		spinner:     "205",
	},
}

func StylesFor(t Theme) Styles {
	p, ok := palettes[t]
	if !ok {
		p = palettes[Light]
	}
	bubble := lipgloss.NewStyle().Padding(0, 1).MarginBottom(1)
	return Styles{
		Header:     lipgloss.NewStyle().Bold(true).Foreground(p.fg).Padding(0, 1),
		ThemeIcon:  lipgloss.NewStyle().Foreground(p.accent).Bold(true),
		BotBubble:  bubble.Background(p.botBg).Foreground(p.botFg),
		UserBubble: bubble.Background(p.userBg).Foreground(p.userFg),
		Typing:     lipgloss.NewStyle().Foreground(p.muted).Italic(true),
		Input:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.inputBorder).Padding(0, 1),
		Help:       lipgloss.NewStyle().Foreground(p.muted),
		Status:     lipgloss.NewStyle().Foreground(p.accent),
		Spinner:    lipgloss.NewStyle().Foreground(p.spinner).Bold(true),
	}
}

// Icon is the toggle indicator: the sun switches to light, the moon to dark.
func Icon(t Theme) string {
	if t == Dark {
		return "☀"
	}
	return "☾"
}

// GlamourStyle returns the glamour standard style for the theme.
func GlamourStyle(t Theme) string {
	if t == Dark {
		return "dark"
	}
	return "light"
}
