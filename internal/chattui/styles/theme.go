package styles

import "github.com/charmbracelet/lipgloss"

// BaseColors defines global UI colors.
type BaseColors struct {
	Background string
	Foreground string
	Muted      string
	Accent     string
	Border     string
}

// MessageColors defines colors for message authorship and delivery state.
type MessageColors struct {
	Own     string
	Other   string
	Pending string
	Read    string
}

// ChromeColors defines non-content UI colors.
type ChromeColors struct {
	Header     string
	Footer     string
	Notice     string
	DayDivider string
}

// Theme defines the chat TUI style tokens.
type Theme struct {
	Name string

	Base    BaseColors
	Message MessageColors
	Chrome  ChromeColors
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// Lookup returns the named theme, falling back to DefaultTheme.
func Lookup(name string) Theme {
	if t, ok := Themes[name]; ok {
		return t
	}
	return DefaultTheme
}

// Muted renders secondary text.
func (t Theme) Muted() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Muted))
}

// Accent renders highlighted text.
func (t Theme) Accent() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Base.Accent))
}

// Author renders the sender label of a message.
func (t Theme) Author(own bool) lipgloss.Style {
	color := t.Message.Other
	if own {
		color = t.Message.Own
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}

// Delivery renders the pending/sent/read marker of an own message.
func (t Theme) Delivery(pending bool) lipgloss.Style {
	color := t.Message.Read
	if pending {
		color = t.Message.Pending
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// Header renders the top bar.
func (t Theme) Header() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(t.Base.Foreground)).
		Background(lipgloss.Color(t.Chrome.Header)).
		Bold(true).
		Padding(0, 1)
}

// Footer renders the bottom bar.
func (t Theme) Footer() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(t.Base.Foreground)).
		Background(lipgloss.Color(t.Chrome.Footer)).
		Padding(0, 1)
}

// Notice renders a transient notice.
func (t Theme) Notice() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Chrome.Notice)).Bold(true)
}

// DayDivider renders a section heading.
func (t Theme) DayDivider() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Chrome.DayDivider))
}

// Input renders the compose line.
func (t Theme) Input() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(t.Base.Foreground)).
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(lipgloss.Color(t.Base.Border))
}
